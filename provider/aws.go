package provider

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
)

// EC2API is the subset of the EC2 client used by EC2Instance.
type EC2API interface {
	DescribeInstanceTypes(ctx context.Context, in *ec2.DescribeInstanceTypesInput, opts ...func(*ec2.Options)) (*ec2.DescribeInstanceTypesOutput, error)
}

// EC2Instance reports the hardware of an EC2 instance type under "ec2":
// vCPUs, memory, architectures and any GPU or Neuron accelerators.
type EC2Instance struct {
	Client       EC2API
	InstanceType string
}

// Provide implements record.Provider.
func (e EC2Instance) Provide(ctx context.Context) (map[string]any, error) {
	if e.InstanceType == "" {
		return nil, fmt.Errorf("ec2 provider: instance type is required")
	}
	out, err := e.Client.DescribeInstanceTypes(ctx, &ec2.DescribeInstanceTypesInput{
		InstanceTypes: []ec2types.InstanceType{ec2types.InstanceType(e.InstanceType)},
	})
	if err != nil {
		return nil, fmt.Errorf("describe instance type %s: %w", e.InstanceType, err)
	}
	if len(out.InstanceTypes) == 0 {
		return nil, fmt.Errorf("instance type %s not found", e.InstanceType)
	}
	it := out.InstanceTypes[0]

	info := map[string]any{"instance_type": string(it.InstanceType)}
	if it.VCpuInfo != nil {
		info["vcpus"] = int(aws.ToInt32(it.VCpuInfo.DefaultVCpus))
	}
	if it.MemoryInfo != nil {
		info["memory_mib"] = aws.ToInt64(it.MemoryInfo.SizeInMiB)
	}
	if it.ProcessorInfo != nil {
		var archs []any
		for _, a := range it.ProcessorInfo.SupportedArchitectures {
			archs = append(archs, string(a))
		}
		info["architectures"] = archs
	}

	var accels []any
	if it.GpuInfo != nil {
		for _, g := range it.GpuInfo.Gpus {
			dev := map[string]any{
				"kind":         "gpu",
				"name":         aws.ToString(g.Name),
				"manufacturer": aws.ToString(g.Manufacturer),
				"count":        int(aws.ToInt32(g.Count)),
			}
			if g.MemoryInfo != nil {
				dev["memory_mib"] = int(aws.ToInt32(g.MemoryInfo.SizeInMiB))
			}
			accels = append(accels, dev)
		}
		info["total_accelerator_memory_mib"] = int(aws.ToInt32(it.GpuInfo.TotalGpuMemoryInMiB))
	}
	if it.NeuronInfo != nil {
		for _, n := range it.NeuronInfo.NeuronDevices {
			dev := map[string]any{
				"kind":         "neuron",
				"name":         aws.ToString(n.Name),
				"manufacturer": "AWS",
				"count":        int(aws.ToInt32(n.Count)),
			}
			if n.MemoryInfo != nil {
				dev["memory_mib"] = int(aws.ToInt32(n.MemoryInfo.SizeInMiB))
			}
			accels = append(accels, dev)
		}
		info["total_accelerator_memory_mib"] = int(aws.ToInt32(it.NeuronInfo.TotalNeuronDeviceMemoryInMiB))
	}
	if len(accels) > 0 {
		info["accelerators"] = accels
	}
	return map[string]any{"ec2": info}, nil
}

// ECRAPI is the subset of the ECR client used by ECRImage.
type ECRAPI interface {
	DescribeImages(ctx context.Context, in *ecr.DescribeImagesInput, opts ...func(*ecr.Options)) (*ecr.DescribeImagesOutput, error)
}

// ECRImage reports the digest, tags, size and push time of the container
// image a benchmark was built from under "image".
type ECRImage struct {
	Client     ECRAPI
	Repository string
	Tag        string
	RegistryID string
}

// Provide implements record.Provider.
func (e ECRImage) Provide(ctx context.Context) (map[string]any, error) {
	if e.Repository == "" {
		return nil, fmt.Errorf("ecr provider: repository is required")
	}
	tag := e.Tag
	if tag == "" {
		tag = "latest"
	}
	in := &ecr.DescribeImagesInput{
		RepositoryName: aws.String(e.Repository),
		ImageIds:       []ecrtypes.ImageIdentifier{{ImageTag: aws.String(tag)}},
	}
	if e.RegistryID != "" {
		in.RegistryId = aws.String(e.RegistryID)
	}
	out, err := e.Client.DescribeImages(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("describe image %s:%s: %w", e.Repository, tag, err)
	}
	if len(out.ImageDetails) == 0 {
		return nil, fmt.Errorf("image %s:%s not found", e.Repository, tag)
	}
	d := out.ImageDetails[0]
	info := map[string]any{
		"repository": e.Repository,
		"tag":        tag,
		"digest":     aws.ToString(d.ImageDigest),
		"size_bytes": aws.ToInt64(d.ImageSizeInBytes),
	}
	var tags []any
	for _, t := range d.ImageTags {
		tags = append(tags, t)
	}
	info["tags"] = tags
	if d.ImagePushedAt != nil {
		info["pushed_at"] = d.ImagePushedAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	return map[string]any{"image": info}, nil
}
