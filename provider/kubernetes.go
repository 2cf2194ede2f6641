package provider

import (
	"context"
	"fmt"
	"os"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// Extended resource names of common accelerators.
const (
	resourceNvidiaGPU = corev1.ResourceName("nvidia.com/gpu")
	resourceNeuron    = corev1.ResourceName("aws.amazon.com/neuron")
)

// KubernetesNode reports the node a benchmark pod runs on under
// "kubernetes": instance type, zone, kubelet version and allocatable
// accelerators.
type KubernetesNode struct {
	Client kubernetes.Interface
	// NodeName defaults to the NODE_NAME environment variable, which is
	// typically set from the downward API.
	NodeName string
}

// InClusterClient creates a Kubernetes client from the pod's service account.
func InClusterClient() (kubernetes.Interface, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("load in-cluster config: %w", err)
	}
	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}
	return client, nil
}

// Provide implements record.Provider.
func (k KubernetesNode) Provide(ctx context.Context) (map[string]any, error) {
	name := k.NodeName
	if name == "" {
		name = os.Getenv("NODE_NAME")
	}
	if name == "" {
		return nil, fmt.Errorf("kubernetes provider: node name is required (set NODE_NAME)")
	}
	node, err := k.Client.CoreV1().Nodes().Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("get node %s: %w", name, err)
	}

	labels := node.Labels
	info := map[string]any{
		"node":            node.Name,
		"instance_type":   labels[corev1.LabelInstanceTypeStable],
		"zone":            labels[corev1.LabelTopologyZone],
		"kubelet_version": node.Status.NodeInfo.KubeletVersion,
		"os_image":        node.Status.NodeInfo.OSImage,
		"kernel_version":  node.Status.NodeInfo.KernelVersion,
	}
	if q, ok := node.Status.Allocatable[resourceNvidiaGPU]; ok {
		info["allocatable_gpus"] = q.Value()
	}
	if q, ok := node.Status.Allocatable[resourceNeuron]; ok {
		info["allocatable_neuron_devices"] = q.Value()
	}
	if q, ok := node.Status.Allocatable[corev1.ResourceMemory]; ok {
		info["allocatable_memory_bytes"] = q.Value()
	}
	return map[string]any{"kubernetes": info}, nil
}
