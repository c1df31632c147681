package health

import (
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
)

// GetDeploymentHealth classifies a Deployment by comparing ready replicas to
// the desired replica count. A nil or zero ready count with a non-zero desired
// count is treated as progressing, which is what triggers a rolling restart in
// the bootstrap driver.
func GetDeploymentHealth(deployment *appsv1.Deployment) *HealthStatus {
	desired := int32(1)
	if deployment.Spec.Replicas != nil {
		desired = *deployment.Spec.Replicas
	}

	ready := deployment.Status.ReadyReplicas
	if ready == desired {
		return &HealthStatus{
			Status:  HealthStatusHealthy,
			Message: fmt.Sprintf("%d of %d replicas are ready", ready, desired),
		}
	}

	return &HealthStatus{
		Status:  HealthStatusProgressing,
		Message: fmt.Sprintf("%d of %d replicas are ready", ready, desired),
	}
}
