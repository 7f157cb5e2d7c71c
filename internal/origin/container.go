package origin

import (
	"bytes"
	"os"
	"sync"
)

const (
	DefaultCgroupPath    = "/proc/1/cgroup"
	DefaultDockerEnvPath = "/.dockerenv"
)

var runtimeMarkers = [][]byte{[]byte("docker"), []byte("ecs")}

// ContainerProbe answers whether this process runs inside a container.
type ContainerProbe interface {
	Containerized() bool
}

// CgroupProbe inspects the cgroup membership of PID 1 for a container runtime
// marker. Hosts on cgroup v2 with a private cgroup namespace show "0::/"
// there, so the Docker marker file is checked as well.
type CgroupProbe struct {
	CgroupPath    string
	DockerEnvPath string
}

func (p CgroupProbe) Containerized() bool {
	cgroupPath := p.CgroupPath
	if cgroupPath == "" {
		cgroupPath = DefaultCgroupPath
	}
	if data, err := os.ReadFile(cgroupPath); err == nil {
		for _, marker := range runtimeMarkers {
			if bytes.Contains(data, marker) {
				return true
			}
		}
	}
	dockerEnv := p.DockerEnvPath
	if dockerEnv == "" {
		dockerEnv = DefaultDockerEnvPath
	}
	_, err := os.Stat(dockerEnv)
	return err == nil
}

type cachedProbe func() bool

func (c cachedProbe) Containerized() bool { return c() }

// Cache runs probe at most once, on first use, and returns its answer from
// then on. Concurrent first calls wait for the single probe run.
func Cache(probe ContainerProbe) ContainerProbe {
	return cachedProbe(sync.OnceValue(probe.Containerized))
}

// StaticProbe is a fixed answer, for tests and for deployments that know
// their environment up front.
type StaticProbe bool

func (s StaticProbe) Containerized() bool { return bool(s) }
