package provider

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"runtime"
	"runtime/debug"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/google/go-cmp/cmp"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/mlbench/mlbench/record"
)

func TestSystemProviders(t *testing.T) {
	ctx := record.Context{}
	for _, p := range []record.Provider{System(), CPUArch(), GoVersion()} {
		if err := ctx.Add(context.Background(), p, false); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	want := record.Context{"system": runtime.GOOS, "cpuarch": runtime.GOARCH, "go_version": runtime.Version()}
	if diff := cmp.Diff(want, ctx); diff != "" {
		t.Errorf("context mismatch (-want +got):\n%s", diff)
	}
}

func TestGoInfo(t *testing.T) {
	g := GoInfo{
		Modules: []string{"github.com/spf13/cobra"},
		read: func() (*debug.BuildInfo, bool) {
			return &debug.BuildInfo{
				Main: debug.Module{Path: "github.com/mlbench/mlbench", Version: "(devel)"},
				Deps: []*debug.Module{
					{Path: "github.com/spf13/cobra", Version: "v1.8.1"},
					{Path: "github.com/google/uuid", Version: "v1.6.0"},
				},
				Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "abc"}},
			}, true
		},
	}
	got, err := g.Provide(context.Background())
	if err != nil {
		t.Fatalf("provide: %v", err)
	}
	info := got["go"].(map[string]any)
	if diff := cmp.Diff(map[string]any{"github.com/spf13/cobra": "v1.8.1"}, info["dependencies"]); diff != "" {
		t.Errorf("dependencies mismatch (-want +got):\n%s", diff)
	}
	if info["vcs_revision"] != "abc" {
		t.Errorf("expected vcs revision, got %v", info)
	}
}

func TestGitEnvironment(t *testing.T) {
	answers := map[string]string{
		"rev-parse --is-inside-work-tree": "true",
		"rev-parse HEAD":                  "0123abcd",
		"describe --tags --always":        "v0.3.0",
		"status --porcelain":              " M bench/params.go",
		"remote get-url origin":           "git@github.com:mlbench/mlbench.git",
	}
	g := GitEnvironment{run: func(_ context.Context, _ string, args ...string) (string, error) {
		v, ok := answers[strings.Join(args, " ")]
		if !ok {
			return "", errors.New("unexpected git call")
		}
		return v, nil
	}}
	got, err := g.Provide(context.Background())
	if err != nil {
		t.Fatalf("provide: %v", err)
	}
	want := map[string]any{"git": map[string]any{
		"commit":     "0123abcd",
		"tag":        "v0.3.0",
		"dirty":      true,
		"provider":   "github.com",
		"repository": "mlbench/mlbench",
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("git info mismatch (-want +got):\n%s", diff)
	}

	g.run = func(context.Context, string, ...string) (string, error) { return "", errors.New("exit status 128") }
	if _, err := g.Provide(context.Background()); err == nil {
		t.Error("expected error outside a repository")
	}
}

func TestParseRemote(t *testing.T) {
	tests := []struct {
		url, host, repo string
	}{
		{"git@github.com:owner/name.git", "github.com", "owner/name"},
		{"https://github.com/owner/name", "github.com", "owner/name"},
		{"https://user@gitlab.com/group/name.git", "gitlab.com", "group/name"},
		{"/srv/git/name", "", "/srv/git/name"},
	}
	for _, tt := range tests {
		host, repo := parseRemote(tt.url)
		if host != tt.host || repo != tt.repo {
			t.Errorf("parseRemote(%q) = %q, %q; want %q, %q", tt.url, host, repo, tt.host, tt.repo)
		}
	}
}

func TestCPUInfo(t *testing.T) {
	got, err := CPUInfo{MemoryUnit: "GiB"}.Provide(context.Background())
	if err != nil {
		t.Skipf("cpu info unavailable: %v", err)
	}
	info := got["cpu"].(map[string]any)
	if info["memory_unit"] != "GiB" {
		t.Errorf("unexpected memory unit %v", info["memory_unit"])
	}
	if v, ok := info["total_memory"].(float64); !ok || v <= 0 {
		t.Errorf("expected positive total memory, got %v", info["total_memory"])
	}

	if _, err := (CPUInfo{FrequencyUnit: "THz"}).Provide(context.Background()); err == nil {
		t.Error("expected error for unknown unit")
	}
}

type fakeEC2 struct {
	out *ec2.DescribeInstanceTypesOutput
	in  *ec2.DescribeInstanceTypesInput
}

func (f *fakeEC2) DescribeInstanceTypes(_ context.Context, in *ec2.DescribeInstanceTypesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstanceTypesOutput, error) {
	f.in = in
	return f.out, nil
}

func TestEC2Instance(t *testing.T) {
	client := &fakeEC2{out: &ec2.DescribeInstanceTypesOutput{InstanceTypes: []ec2types.InstanceTypeInfo{{
		InstanceType:  ec2types.InstanceType("g5.xlarge"),
		VCpuInfo:      &ec2types.VCpuInfo{DefaultVCpus: aws.Int32(4)},
		MemoryInfo:    &ec2types.MemoryInfo{SizeInMiB: aws.Int64(16384)},
		ProcessorInfo: &ec2types.ProcessorInfo{SupportedArchitectures: []ec2types.ArchitectureType{ec2types.ArchitectureTypeX8664}},
		GpuInfo: &ec2types.GpuInfo{
			Gpus: []ec2types.GpuDeviceInfo{{
				Name: aws.String("A10G"), Manufacturer: aws.String("NVIDIA"), Count: aws.Int32(1),
				MemoryInfo: &ec2types.GpuDeviceMemoryInfo{SizeInMiB: aws.Int32(24576)},
			}},
			TotalGpuMemoryInMiB: aws.Int32(24576),
		},
	}}}}

	got, err := EC2Instance{Client: client, InstanceType: "g5.xlarge"}.Provide(context.Background())
	if err != nil {
		t.Fatalf("provide: %v", err)
	}
	if len(client.in.InstanceTypes) != 1 || client.in.InstanceTypes[0] != "g5.xlarge" {
		t.Errorf("unexpected request %+v", client.in)
	}
	info := got["ec2"].(map[string]any)
	if info["vcpus"] != 4 || info["memory_mib"] != int64(16384) || info["total_accelerator_memory_mib"] != 24576 {
		t.Errorf("unexpected info %v", info)
	}
	accels := info["accelerators"].([]any)
	if dev := accels[0].(map[string]any); dev["name"] != "A10G" || dev["count"] != 1 {
		t.Errorf("unexpected accelerator %v", dev)
	}

	if _, err := (EC2Instance{Client: client}).Provide(context.Background()); err == nil {
		t.Error("expected error without instance type")
	}
}

type fakeECR struct{}

func (fakeECR) DescribeImages(_ context.Context, in *ecr.DescribeImagesInput, _ ...func(*ecr.Options)) (*ecr.DescribeImagesOutput, error) {
	if aws.ToString(in.ImageIds[0].ImageTag) != "v2" {
		return &ecr.DescribeImagesOutput{}, nil
	}
	pushed := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	return &ecr.DescribeImagesOutput{ImageDetails: []ecrtypes.ImageDetail{{
		ImageDigest:      aws.String("sha256:feed"),
		ImageTags:        []string{"v2", "latest"},
		ImageSizeInBytes: aws.Int64(1 << 30),
		ImagePushedAt:    &pushed,
	}}}, nil
}

func TestECRImage(t *testing.T) {
	got, err := ECRImage{Client: fakeECR{}, Repository: "vllm", Tag: "v2"}.Provide(context.Background())
	if err != nil {
		t.Fatalf("provide: %v", err)
	}
	info := got["image"].(map[string]any)
	if info["digest"] != "sha256:feed" || info["pushed_at"] != "2026-09-01T08:00:00Z" {
		t.Errorf("unexpected info %v", info)
	}
	if _, err := (ECRImage{Client: fakeECR{}, Repository: "vllm"}).Provide(context.Background()); err == nil {
		t.Error("expected error for a missing image")
	}
}

type fakePricing struct{ doc string }

func (f fakePricing) GetProducts(context.Context, *pricing.GetProductsInput, ...func(*pricing.Options)) (*pricing.GetProductsOutput, error) {
	if f.doc == "" {
		return &pricing.GetProductsOutput{}, nil
	}
	return &pricing.GetProductsOutput{PriceList: []string{f.doc}}, nil
}

func TestPricing(t *testing.T) {
	doc := map[string]any{"terms": map[string]any{
		"OnDemand": map[string]any{"a": map[string]any{
			"priceDimensions": map[string]any{"x": map[string]any{"unit": "Hrs", "pricePerUnit": map[string]string{"USD": "1.006"}}},
		}},
		"Reserved": map[string]any{"b": map[string]any{
			"termAttributes":  map[string]string{"LeaseContractLength": "1yr", "PurchaseOption": "All Upfront", "OfferingClass": "standard"},
			"priceDimensions": map[string]any{"y": map[string]any{"unit": "Quantity", "pricePerUnit": map[string]string{"USD": "8760"}}},
		}},
	}}
	data, _ := json.Marshal(doc)

	got, err := Pricing{Client: fakePricing{string(data)}, InstanceType: "g5.xlarge", Region: "us-east-2"}.Provide(context.Background())
	if err != nil {
		t.Fatalf("provide: %v", err)
	}
	info := got["pricing"].(map[string]any)
	if info["on_demand_hourly_usd"] != 1.006 || info["reserved_1yr_hourly_usd"] != 1.0 {
		t.Errorf("unexpected pricing %v", info)
	}
	if _, ok := info["reserved_3yr_hourly_usd"]; ok {
		t.Errorf("expected no 3yr rate")
	}

	if _, err := (Pricing{Client: fakePricing{}, InstanceType: "x", Region: "y"}).Provide(context.Background()); err == nil {
		t.Error("expected error for empty price list")
	}
}

func TestKubernetesNode(t *testing.T) {
	client := fake.NewSimpleClientset(&corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: "ip-10-0-0-1", Labels: map[string]string{
			corev1.LabelInstanceTypeStable: "p5.48xlarge",
			corev1.LabelTopologyZone:       "us-east-2a",
		}},
		Status: corev1.NodeStatus{
			NodeInfo:    corev1.NodeSystemInfo{KubeletVersion: "v1.31.0"},
			Allocatable: corev1.ResourceList{resourceNvidiaGPU: resource.MustParse("8")},
		},
	})

	got, err := KubernetesNode{Client: client, NodeName: "ip-10-0-0-1"}.Provide(context.Background())
	if err != nil {
		t.Fatalf("provide: %v", err)
	}
	info := got["kubernetes"].(map[string]any)
	if info["instance_type"] != "p5.48xlarge" || info["zone"] != "us-east-2a" || info["allocatable_gpus"] != int64(8) {
		t.Errorf("unexpected node info %v", info)
	}

	if _, err := (KubernetesNode{Client: client, NodeName: "missing"}).Provide(context.Background()); err == nil {
		t.Error("expected error for unknown node")
	}
}

func TestHuggingFace(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer hf_x" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/api/models/mistralai/Mistral-7B":
			w.Write([]byte(`{"safetensors":{"total":7248023552},"gated":false}`))
		case "/mistralai/Mistral-7B/resolve/main/config.json":
			w.Write([]byte(`{"hidden_size":4096,"num_attention_heads":32,"num_key_value_heads":8,"num_hidden_layers":32,"torch_dtype":"bfloat16","model_type":"mistral"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	h := HuggingFace{ModelID: "mistralai/Mistral-7B", Token: "hf_x", BaseURL: ts.URL}
	got, err := h.Provide(context.Background())
	if err != nil {
		t.Fatalf("provide: %v", err)
	}
	info := got["model"].(map[string]any)
	if info["parameter_count"] != int64(7248023552) || info["model_type"] != "mistral" {
		t.Errorf("unexpected model info %v", info)
	}
	if info["weights_bytes"] != 2*7248023552.0 {
		t.Errorf("unexpected weights estimate %v", info["weights_bytes"])
	}
	// 2 (K,V) * 32 layers * 8 heads * 128 dim * 2 bytes
	if info["kv_cache_bytes_per_token"] != 131072.0 {
		t.Errorf("unexpected kv cache estimate %v", info["kv_cache_bytes_per_token"])
	}

	h.Token = ""
	_, err = h.Provide(context.Background())
	var hfErr *HFError
	if !errors.As(err, &hfErr) || hfErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 HFError, got %v", err)
	}
}

func TestBytesPerParam(t *testing.T) {
	tests := []struct {
		dtype string
		want  float64
	}{
		{"fp32", 4},
		{"", 2},
		{"bfloat16", 2},
		{"fp8", 1},
		{"int4", 0.5},
		{"unknown", 2},
	}
	for _, tt := range tests {
		if got := bytesPerParam(tt.dtype); got != tt.want {
			t.Errorf("bytesPerParam(%q) = %v, want %v", tt.dtype, got, tt.want)
		}
	}
	if got := modelMemoryBytes(7_000_000_000, "int4"); math.Abs(got-3.5e9) > 1 {
		t.Errorf("modelMemoryBytes = %v, want 3.5e9", got)
	}
}

func TestNew(t *testing.T) {
	p, err := New("static", map[string]any{"run.owner": "ci"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := record.Context{}
	if err := ctx.Add(context.Background(), p, false); err != nil {
		t.Fatalf("add: %v", err)
	}
	if v, _ := ctx.Get("run.owner"); v != "ci" {
		t.Errorf("unexpected context %v", ctx)
	}

	if _, err := New("cpu", map[string]any{"memory_unit": "MiB"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := New("cpu", map[string]any{"bogus": 1}); err == nil {
		t.Error("expected error for unknown argument")
	}
	if _, err := New("system", map[string]any{"x": 1}); err == nil {
		t.Error("expected error for arguments to system")
	}
	if _, err := New("nope", nil); err == nil {
		t.Error("expected error for unknown kind")
	}
}
