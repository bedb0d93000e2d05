/*
 * pkg/clusterauth/resource.go
 *
 * The abstract resource/verb permission vocabulary and its translation onto
 * concrete Kubernetes group/resource/subresource triples.
 */

package clusterauth

import (
	"fmt"
	"regexp"
	"strings"
)

// ResourceType names a class of objects the service manages abstractly,
// independent of how the cluster actually models them.
type ResourceType string

// The closed set of resource types this service gates access to.
const (
	TargetResource        ResourceType = "TARGET"
	RecordingResource     ResourceType = "RECORDING"
	CertificateResource   ResourceType = "CERTIFICATE"
	CredentialsResource   ResourceType = "CREDENTIALS"
	ProbeTemplateResource ResourceType = "PROBE_TEMPLATE"
	TemplateResource      ResourceType = "TEMPLATE"
)

// ResourceVerb names an action performed against a ResourceType.
type ResourceVerb string

// The closed set of verbs this service gates access to.
const (
	VerbCreate ResourceVerb = "CREATE"
	VerbRead   ResourceVerb = "READ"
	VerbUpdate ResourceVerb = "UPDATE"
	VerbDelete ResourceVerb = "DELETE"
)

// kubeVerb translates a ResourceVerb to the verb string SelfSubjectAccessReview
// expects. An unmapped verb is a programmer error, surfaced as
// InvalidArgumentError rather than a panic.
func kubeVerb(v ResourceVerb) (string, error) {
	switch v {
	case VerbCreate:
		return "create", nil
	case VerbRead:
		return "get", nil
	case VerbUpdate:
		return "patch", nil
	case VerbDelete:
		return "delete", nil
	default:
		return "", &InvalidArgumentError{Detail: fmt.Sprintf("unknown resource verb %q", v)}
	}
}

// ResourceAction is an abstract permission: a resource type paired with the
// verb to perform against it. It is immutable and comparable, so it can be
// used as a map key directly.
type ResourceAction struct {
	Type ResourceType
	Verb ResourceVerb
}

// GroupResource is the concrete Kubernetes triple a ResourceType maps onto.
// Any field may be empty; equality and the zero value are componentwise,
// which is sufficient for use as a map key.
type GroupResource struct {
	Group       string
	Resource    string
	SubResource string
}

// groupResourcePattern implements the canonical-form grammar:
// resource[.group][/subResource], case-insensitive.
var groupResourcePattern = regexp.MustCompile(`(?i)^([\w]+)([.\w]+)?(?:/([\w]+))?$`)

// ParseGroupResource parses the canonical string form of a GroupResource.
// Group 1 is the resource, group 2 (if present) is the group with its
// leading '.' stripped, group 3 is the subresource.
func ParseGroupResource(s string) (GroupResource, error) {
	match := groupResourcePattern.FindStringSubmatch(s)
	if match == nil {
		return GroupResource{}, &InvalidArgumentError{Detail: fmt.Sprintf("malformed group resource %q", s)}
	}
	return GroupResource{
		Resource:    match[1],
		Group:       strings.TrimPrefix(match[2], "."),
		SubResource: match[3],
	}, nil
}

// String renders the canonical form resource[.group][/subResource].
func (gr GroupResource) String() string {
	var b strings.Builder
	b.WriteString(gr.Resource)
	if gr.Group != "" {
		b.WriteByte('.')
		b.WriteString(gr.Group)
	}
	if gr.SubResource != "" {
		b.WriteByte('/')
		b.WriteString(gr.SubResource)
	}
	return b.String()
}
