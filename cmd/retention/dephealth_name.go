package main

import (
	"os"
	"regexp"
)

var (
	// deploymentPod: {owner}-{pod-template-hash}-{suffix}
	deploymentPod = regexp.MustCompile(`^(.+)-[a-z0-9]{6,10}-[a-z0-9]{5}$`)
	// statefulSetPod: {owner}-{ordinal}
	statefulSetPod = regexp.MustCompile(`^(.+)-[0-9]+$`)
)

// parseOwnerName извлекает имя владельца пода (Deployment, StatefulSet) из hostname.
// Если hostname не похож на имя пода, возвращается как есть.
func parseOwnerName(hostname string) string {
	if m := deploymentPod.FindStringSubmatch(hostname); m != nil {
		return m[1]
	}
	if m := statefulSetPod.FindStringSubmatch(hostname); m != nil {
		return m[1]
	}
	return hostname
}

// serviceID возвращает идентификатор сервиса для topologymetrics.
func serviceID(configured string) string {
	if configured != "" {
		return configured
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "frame-retention"
	}
	return parseOwnerName(hostname)
}
