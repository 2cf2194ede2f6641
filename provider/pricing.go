package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	pricingtypes "github.com/aws/aws-sdk-go-v2/service/pricing/types"
)

// PricingAPI is the subset of the AWS Pricing client used by Pricing.
type PricingAPI interface {
	GetProducts(ctx context.Context, in *pricing.GetProductsInput, opts ...func(*pricing.Options)) (*pricing.GetProductsOutput, error)
}

// Pricing reports the Linux on-demand and 1yr/3yr All Upfront reserved
// hourly rates of an instance type under "pricing". The Pricing API is only
// served from us-east-1; Region selects the priced region.
type Pricing struct {
	Client       PricingAPI
	InstanceType string
	Region       string
}

// Provide implements record.Provider.
func (p Pricing) Provide(ctx context.Context) (map[string]any, error) {
	if p.InstanceType == "" || p.Region == "" {
		return nil, fmt.Errorf("pricing provider: instance type and region are required")
	}
	onDemand, res1yr, res3yr, err := fetchPricing(ctx, p.Client, p.InstanceType, p.Region)
	if err != nil {
		return nil, err
	}
	info := map[string]any{
		"instance_type":        p.InstanceType,
		"region":               p.Region,
		"on_demand_hourly_usd": onDemand,
	}
	if res1yr != nil {
		info["reserved_1yr_hourly_usd"] = *res1yr
	}
	if res3yr != nil {
		info["reserved_3yr_hourly_usd"] = *res3yr
	}
	return map[string]any{"pricing": info}, nil
}

// fetchPricing calls the AWS Pricing API for a single instance type and region,
// returning on-demand hourly, 1yr RI (All Upfront), and 3yr RI (All Upfront) rates.
func fetchPricing(ctx context.Context, client PricingAPI, instanceType, region string) (onDemand float64, res1yr, res3yr *float64, err error) {
	term := func(field, value string) pricingtypes.Filter {
		return pricingtypes.Filter{Type: pricingtypes.FilterTypeTermMatch, Field: aws.String(field), Value: aws.String(value)}
	}
	resp, err := client.GetProducts(ctx, &pricing.GetProductsInput{
		ServiceCode: aws.String("AmazonEC2"),
		Filters: []pricingtypes.Filter{
			term("instanceType", instanceType),
			term("operatingSystem", "Linux"),
			term("tenancy", "Shared"),
			term("preInstalledSw", "NA"),
			term("capacitystatus", "Used"),
			term("regionCode", region),
		},
		MaxResults: aws.Int32(10),
	})
	if err != nil {
		return 0, nil, nil, fmt.Errorf("get products: %w", err)
	}
	if len(resp.PriceList) == 0 {
		return 0, nil, nil, fmt.Errorf("no pricing found for %s in %s", instanceType, region)
	}

	var product priceDoc
	if err := json.Unmarshal([]byte(resp.PriceList[0]), &product); err != nil {
		return 0, nil, nil, fmt.Errorf("parse price list: %w", err)
	}
	onDemand, err = extractOnDemand(product.Terms.OnDemand)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("on-demand: %w", err)
	}
	return onDemand, extractReserved(product.Terms.Reserved, "1yr"), extractReserved(product.Terms.Reserved, "3yr"), nil
}

// priceDoc is the relevant part of a price list entry.
type priceDoc struct {
	Terms struct {
		OnDemand map[string]termEntry `json:"OnDemand"`
		Reserved map[string]termEntry `json:"Reserved"`
	} `json:"terms"`
}

type termEntry struct {
	PriceDimensions map[string]priceDimension `json:"priceDimensions"`
	TermAttributes  map[string]string         `json:"termAttributes"`
}

type priceDimension struct {
	Unit         string            `json:"unit"`
	PricePerUnit map[string]string `json:"pricePerUnit"`
}

func extractOnDemand(terms map[string]termEntry) (float64, error) {
	for _, term := range terms {
		for _, pd := range term.PriceDimensions {
			if pd.Unit != "Hrs" {
				continue
			}
			if usd, ok := pd.PricePerUnit["USD"]; ok {
				return strconv.ParseFloat(usd, 64)
			}
		}
	}
	return 0, fmt.Errorf("no hourly on-demand price found")
}

var leaseHours = map[string]float64{"1yr": 8760, "3yr": 26280}

// extractReserved returns the effective hourly rate of the standard All
// Upfront reservation for lease ("1yr" or "3yr").
func extractReserved(terms map[string]termEntry, lease string) *float64 {
	for _, term := range terms {
		attrs := term.TermAttributes
		if attrs["LeaseContractLength"] != lease ||
			attrs["PurchaseOption"] != "All Upfront" ||
			attrs["OfferingClass"] != "standard" {
			continue
		}
		for _, pd := range term.PriceDimensions {
			if pd.Unit != "Quantity" {
				continue
			}
			upfront, err := strconv.ParseFloat(pd.PricePerUnit["USD"], 64)
			if err != nil || upfront <= 0 {
				continue
			}
			hourly := upfront / leaseHours[lease]
			return &hourly
		}
	}
	return nil
}
