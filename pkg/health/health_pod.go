package health

import (
	"strings"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/kubectl/pkg/util/podutils"
)

// Container waiting reasons that indicate a pod is still coming up rather
// than failing.
const (
	reasonContainerCreating = "ContainerCreating"
	reasonPodInitializing   = "PodInitializing"
)

// GetPodHealth classifies a pod for final validation:
//
//   - Healthy: phase Succeeded, or phase Running with the Ready condition true
//     (all containers N/N ready)
//   - Progressing: containers still being created or init containers still
//     running
//   - Degraded: everything else, including unrecognized states
func GetPodHealth(pod *corev1.Pod) *HealthStatus {
	switch pod.Status.Phase {
	case corev1.PodSucceeded:
		return &HealthStatus{Status: HealthStatusHealthy, Message: pod.Status.Message}
	case corev1.PodRunning:
		if podutils.IsPodReady(pod) {
			return &HealthStatus{Status: HealthStatusHealthy, Message: pod.Status.Message}
		}
		if isPodStarting(pod) {
			return &HealthStatus{Status: HealthStatusProgressing, Message: pod.Status.Message}
		}
		return &HealthStatus{Status: HealthStatusDegraded, Message: pod.Status.Message}
	case corev1.PodPending:
		if isPodStarting(pod) {
			return &HealthStatus{Status: HealthStatusProgressing, Message: pod.Status.Message}
		}
		return &HealthStatus{Status: HealthStatusDegraded, Message: pod.Status.Message}
	default:
		return &HealthStatus{Status: HealthStatusDegraded, Message: pod.Status.Message}
	}
}

// AggregatePodHealth folds a pod list into a single status: the worst
// individual classification, or Unknown when there are no pods to assess.
func AggregatePodHealth(pods []corev1.Pod) HealthStatusCode {
	if len(pods) == 0 {
		return HealthStatusUnknown
	}
	aggregate := HealthStatusHealthy
	for i := range pods {
		if status := GetPodHealth(&pods[i]); IsWorse(aggregate, status.Status) {
			aggregate = status.Status
		}
	}
	return aggregate
}

// IsPodSettled reports whether a pod has left the transitional phases. Only
// Running and Succeeded pods stop the readiness wait between deploy attempts.
func IsPodSettled(pod *corev1.Pod) bool {
	return pod.Status.Phase == corev1.PodRunning || pod.Status.Phase == corev1.PodSucceeded
}

// isPodStarting reports whether the pod is in a known transitional state:
// containers being created, or init containers still executing.
func isPodStarting(pod *corev1.Pod) bool {
	for _, status := range pod.Status.InitContainerStatuses {
		if status.State.Running != nil || isWaitingToStart(status) {
			return true
		}
	}
	for _, status := range pod.Status.ContainerStatuses {
		if isWaitingToStart(status) {
			return true
		}
	}
	return false
}

func isWaitingToStart(status corev1.ContainerStatus) bool {
	waiting := status.State.Waiting
	if waiting == nil {
		return false
	}
	return waiting.Reason == reasonContainerCreating ||
		waiting.Reason == reasonPodInitializing ||
		strings.HasPrefix(waiting.Reason, "Init:")
}
