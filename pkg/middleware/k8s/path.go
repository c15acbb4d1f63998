package k8s

import (
	"regexp"
)

// Container log paths follow the kubelet's fixed layout:
// /var/log/containers/<pod>_<namespace>_<container>-<64-hex-container-id>.log
var containerPathRegexp = regexp.MustCompile(
	`^/var/log/containers/([0-9A-Za-z\-.]+)_([0-9A-Za-z\-.]+)_([0-9A-Za-z\-.]+)-([a-z0-9]{64})\.log$`)

// parseContainerPath extracts the pod name and namespace from a container
// log file path. No partial matching: anything that deviates from the fixed
// layout is not a container log.
func parseContainerPath(path string) (name, namespace string, ok bool) {
	m := containerPathRegexp.FindStringSubmatch(path)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}
