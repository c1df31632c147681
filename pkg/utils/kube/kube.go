// Package kube provides the cluster client surface used by the bootstrap
// driver: manifest apply, workload inspection, rolling restarts, readiness
// waits and secret retrieval. It talks to the API server directly through
// client-go instead of shelling out to kubectl.
package kube

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
	"k8s.io/utils/clock"

	"github.com/namix-io/bootstrap-engine/pkg/utils/tracing"
)

// Client is the surface of the cluster the bootstrap driver touches.
type Client interface {
	// Apply creates the object, or patches the live object when it already
	// exists. Returns a short human readable message, e.g. "service/argocd-server created".
	Apply(ctx context.Context, obj *unstructured.Unstructured) (string, error)
	// GetPods lists all pods in the namespace.
	GetPods(ctx context.Context, namespace string) ([]corev1.Pod, error)
	// GetDeployment fetches a deployment. Returns a NotFound API error when absent.
	GetDeployment(ctx context.Context, namespace string, name string) (*appsv1.Deployment, error)
	// RestartDeployment triggers a rolling restart the way kubectl rollout restart does.
	RestartDeployment(ctx context.Context, namespace string, name string) error
	// WaitForPodsReady blocks until every pod in the namespace has the Ready
	// condition or has completed, polling at the given interval. An empty
	// namespace is an immediate error, matching kubectl wait --all.
	WaitForPodsReady(ctx context.Context, namespace string, interval time.Duration, timeout time.Duration) error
	// GetSecretValue reads a single key from a secret. The value is returned
	// decoded, as stored by the API server.
	GetSecretValue(ctx context.Context, namespace string, name string, key string) (string, error)
}

type client struct {
	clientset kubernetes.Interface
	dynamic   dynamic.Interface
	mapper    meta.RESTMapper
	log       logr.Logger
	tracer    tracing.Tracer
	clock     clock.PassiveClock
}

var _ Client = &client{}

// NewClient creates a client from pre-built Kubernetes interfaces. This is
// the constructor used by unit tests.
func NewClient(clientset kubernetes.Interface, dyn dynamic.Interface, mapper meta.RESTMapper, log logr.Logger, opts ...Option) Client {
	c := &client{
		clientset: clientset,
		dynamic:   dyn,
		mapper:    mapper,
		log:       log,
		tracer:    tracing.NopTracer{},
		clock:     clock.RealClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromConfig builds all Kubernetes clients from a REST config.
func NewClientFromConfig(config *rest.Config, log logr.Logger, opts ...Option) (Client, error) {
	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}

	dyn, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("create dynamic client: %w", err)
	}

	disco, err := discovery.NewDiscoveryClientForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("create discovery client: %w", err)
	}

	groupResources, err := restmapper.GetAPIGroupResources(disco)
	if err != nil {
		return nil, fmt.Errorf("discover api group resources: %w", err)
	}
	mapper := restmapper.NewDiscoveryRESTMapper(groupResources)

	return NewClient(clientset, dyn, mapper, log, opts...), nil
}

// Option customizes the client.
type Option func(*client)

// WithTracer sets the tracer used to time cluster operations.
func WithTracer(tracer tracing.Tracer) Option {
	return func(c *client) {
		c.tracer = tracer
	}
}

// WithClock overrides the clock used for restart timestamps.
func WithClock(c clock.PassiveClock) Option {
	return func(cl *client) {
		cl.clock = c
	}
}
