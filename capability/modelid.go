package capability

import (
	"fmt"
	"strings"
)

// Kind is the shape of a model identifier.
type Kind int

const (
	// Direct is a plain identifier present in the built-in table.
	Direct Kind = iota
	// CrossRegion is a Bedrock inference profile routing to a geographic group.
	CrossRegion
	// Custom is any other identifier, typically the target of an override.
	Custom
)

func (k Kind) String() string {
	switch k {
	case Direct:
		return "direct"
	case CrossRegion:
		return "cross-region"
	default:
		return "custom"
	}
}

const arnPrefix = "arn:aws:bedrock:"

// regionPrefixes maps AWS regions to their inference-profile group prefix.
var regionPrefixes = map[string]string{
	"us-east-1":      "us",
	"us-west-2":      "us",
	"eu-central-1":   "eu",
	"eu-west-1":      "eu",
	"eu-west-2":      "eu",
	"ap-northeast-1": "ap",
	"ap-southeast-1": "ap",
	"ap-southeast-2": "ap",
}

// profilePrefixes are the group prefixes recognised on bare profile ids.
var profilePrefixes = map[string]bool{
	"us": true, "eu": true, "ap": true, "apac": true, "us-gov": true, "global": true,
}

// RegionPrefix returns the profile prefix for a region, or the region itself when unmapped.
func RegionPrefix(region string) string {
	if p, ok := regionPrefixes[region]; ok {
		return p
	}
	return region
}

// ModelID is a parsed model identifier. Comparison is case-sensitive.
type ModelID struct {
	raw     string
	kind    Kind
	region  string
	account string
	prefix  string
	vendor  string
	name    string
}

// ParseModelID classifies s. It never fails: unrecognised shapes are Custom.
func ParseModelID(s string) ModelID {
	id := ModelID{raw: s, kind: Custom}

	if strings.HasPrefix(s, arnPrefix) {
		parts := strings.SplitN(s, ":", 6)
		if len(parts) == 6 {
			if profile, ok := strings.CutPrefix(parts[5], "inference-profile/"); ok {
				if prefix, vendor, name, ok := splitProfile(profile); ok {
					id.kind = CrossRegion
					id.region = parts[3]
					id.account = parts[4]
					id.prefix, id.vendor, id.name = prefix, vendor, name
					return id
				}
			}
		}
		return id
	}

	if _, ok := builtinIndex[s]; ok {
		id.kind = Direct
		return id
	}

	if prefix, vendor, name, ok := splitProfile(s); ok && profilePrefixes[prefix] {
		id.kind = CrossRegion
		id.prefix, id.vendor, id.name = prefix, vendor, name
	}
	return id
}

// NewCrossRegion builds the inference-profile ARN for vendor.model in region.
// The account segment is left empty.
func NewCrossRegion(region, vendor, name string) ModelID {
	prefix := RegionPrefix(region)
	return ModelID{
		raw:    fmt.Sprintf("%s%s::inference-profile/%s.%s.%s", arnPrefix, region, prefix, vendor, name),
		kind:   CrossRegion,
		region: region,
		prefix: prefix,
		vendor: vendor,
		name:   name,
	}
}

func splitProfile(profile string) (prefix, vendor, name string, ok bool) {
	parts := strings.SplitN(profile, ".", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// String returns the identifier exactly as given.
func (m ModelID) String() string { return m.raw }

// Kind returns the identifier shape.
func (m ModelID) Kind() Kind { return m.kind }

// Region returns the AWS region of a cross-region ARN.
func (m ModelID) Region() string { return m.region }

// Vendor returns the vendor segment of a cross-region identifier.
func (m ModelID) Vendor() string { return m.vendor }

// Name returns the model segment of a cross-region identifier.
func (m ModelID) Name() string { return m.name }

// Keys returns the lookup keys in precedence order: the full identifier,
// the ARN with its account cleared, prefix.vendor.model, vendor.model, model.
// Direct and Custom identifiers have one key.
func (m ModelID) Keys() []string {
	if m.kind != CrossRegion {
		return []string{m.raw}
	}

	keys := []string{m.raw}
	if normalized, ok := NormalizeARN(m.raw); ok {
		keys = append(keys, normalized)
	}
	keys = append(keys,
		m.prefix+"."+m.vendor+"."+m.name,
		m.vendor+"."+m.name,
		m.name,
	)
	return dedupe(keys)
}

// NormalizeARN clears the account segment of a Bedrock ARN.
func NormalizeARN(s string) (string, bool) {
	if !strings.HasPrefix(s, arnPrefix) {
		return "", false
	}
	parts := strings.SplitN(s, ":", 6)
	if len(parts) != 6 {
		return "", false
	}
	parts[4] = ""
	return strings.Join(parts, ":"), true
}

func dedupe(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
