package runner

import (
	"fmt"
	"regexp"
	"strings"

	"jobrunner/internal/apperrors"
)

// Backend names understood by Parse. This is the sole place backend
// selection by name occurs.
const (
	BackendLocal      = "local"
	BackendGridEngine = "gridengine"
	BackendDocker     = "docker"
)

// specPattern matches `name` or `name(token token ...)`.
var specPattern = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9]*)(?:\((.*)\))?$`)

// BackendName extracts the backend name from a runner specification string,
// returning "" when the specification is malformed. It does not check that
// the name is a known backend.
func BackendName(spec string) string {
	m := specPattern.FindStringSubmatch(strings.TrimSpace(spec))
	if m == nil {
		return ""
	}
	return m[1]
}

// Parse builds a configured runner from a short specification string of the
// grammar `name` or `name(token token ...)`, tokens separated by single
// spaces with no quoting. The tokens are forwarded to the backend's
// constructor:
//
//	local           local process runner
//	local(join)     local process runner merging stderr into the log
//	gridengine(-l short -j y)
//	                batch runner with extra scheduler submit arguments
//	docker(alpine:3.22 join)
//	                container runner with the given image
//
// Unknown backend names yield a not-found error.
func Parse(spec string) (Runner, error) {
	m := specPattern.FindStringSubmatch(strings.TrimSpace(spec))
	if m == nil {
		return nil, apperrors.Validation("runner", fmt.Sprintf("malformed runner specification %q", spec))
	}
	name := m[1]
	var tokens []string
	if m[2] != "" {
		tokens = strings.Split(m[2], " ")
	}

	switch name {
	case BackendLocal:
		cfg := LocalConfig{}
		for _, tok := range tokens {
			if tok != "join" {
				return nil, apperrors.Validation("runner", fmt.Sprintf("unknown local runner argument %q", tok))
			}
			cfg.JoinLogs = true
		}
		return NewLocal(cfg), nil

	case BackendGridEngine:
		return NewGridEngine(GridEngineConfig{ExtraArgs: tokens}), nil

	case BackendDocker:
		cfg := DockerConfig{}
		for _, tok := range tokens {
			if tok == "join" {
				cfg.JoinLogs = true
				continue
			}
			if cfg.Image != "" {
				return nil, apperrors.Validation("runner", fmt.Sprintf("unknown docker runner argument %q", tok))
			}
			cfg.Image = tok
		}
		return NewDocker(cfg)

	default:
		return nil, apperrors.NotFound("runner", name)
	}
}
