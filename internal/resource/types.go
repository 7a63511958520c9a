package resource

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
)

// Kind identifies one of the managed resource categories. Declaration order is
// the processing priority used by the orchestrator.
type Kind int

const (
	KindDatabase Kind = iota
	KindContainerService
	KindAutoScalingGroup
	KindComputeInstance
)

// AllKinds returns every kind in processing order.
func AllKinds() []Kind {
	return []Kind{KindDatabase, KindContainerService, KindAutoScalingGroup, KindComputeInstance}
}

func (k Kind) String() string {
	switch k {
	case KindDatabase:
		return "rds"
	case KindContainerService:
		return "ecs"
	case KindAutoScalingGroup:
		return "asg"
	case KindComputeInstance:
		return "ec2"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a request resource name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rds":
		return KindDatabase, nil
	case "ecs":
		return KindContainerService, nil
	case "asg":
		return KindAutoScalingGroup, nil
	case "ec2":
		return KindComputeInstance, nil
	default:
		return 0, fmt.Errorf("unsupported resource %q", s)
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Action is the requested lifecycle operation.
type Action string

const (
	ActionStart Action = "start"
	ActionStop  Action = "stop"
)

// Valid reports whether a is start or stop.
func (a Action) Valid() bool {
	return a == ActionStart || a == ActionStop
}

// Target returns the power state the action drives resources towards.
func (a Action) Target() PowerState {
	if a == ActionStart {
		return Running
	}
	return Stopped
}

type PowerState string

const (
	Running PowerState = "running"
	Stopped PowerState = "stopped"
)

// DesiredState is the target of a transition. Capacity only matters for
// container services and autoscaling groups.
type DesiredState struct {
	State    PowerState
	Capacity int32
}

// Verb returns the present tense verb used in messages ("start" or "stop").
func (d DesiredState) Verb() string {
	if d.State == Running {
		return "start"
	}
	return "stop"
}

// Past returns the past participle used in messages ("started" or "stopped").
func (d DesiredState) Past() string {
	if d.State == Running {
		return "started"
	}
	return "stopped"
}

// Capacity holds the size bounds of a group.
type Capacity struct {
	Min     int32 `json:"min"`
	Max     int32 `json:"max"`
	Desired int32 `json:"desired"`
}

// SymmetricCapacity pins min, max and desired to the same value, leaving the
// group no elastic range.
func SymmetricCapacity(n int32) Capacity {
	return Capacity{Min: n, Max: n, Desired: n}
}

// Reason classifies a failed outcome.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonInvalidState      Reason = "invalid_state"
	ReasonAccessDenied      Reason = "access_denied"
	ReasonNotFound          Reason = "not_found"
	ReasonNoResources       Reason = "no_resources"
	ReasonEnumerationFailed Reason = "enumeration_failed"
	ReasonProviderError     Reason = "provider_error"
	ReasonAborted           Reason = "aborted"
	ReasonPanic             Reason = "panic"
)

// Outcome is the result of one transition attempt. ResourceID is empty for
// records describing a whole kind.
type Outcome struct {
	Kind       Kind            `json:"resource_kind"`
	ResourceID string          `json:"resource_id"`
	Succeeded  bool            `json:"succeeded"`
	Message    string          `json:"message"`
	Reason     Reason          `json:"reason,omitempty"`
	Timestamp  strfmt.DateTime `json:"timestamp"`
}

// Succeeded builds a successful outcome.
func Succeeded(kind Kind, id, message string) Outcome {
	return Outcome{
		Kind:       kind,
		ResourceID: id,
		Succeeded:  true,
		Message:    message,
		Timestamp:  strfmt.DateTime(time.Now().UTC()),
	}
}

// Failed builds a failed outcome.
func Failed(kind Kind, id string, reason Reason, message string) Outcome {
	return Outcome{
		Kind:       kind,
		ResourceID: id,
		Message:    message,
		Reason:     reason,
		Timestamp:  strfmt.DateTime(time.Now().UTC()),
	}
}

// CapacityConfig overrides the desired count used when starting a kind.
type CapacityConfig struct {
	DesiredCount *int `json:"desired_count" yaml:"desired_count" validate:"required,gte=1,lte=2147483647"`
}

type RequestConfig struct {
	ECS *CapacityConfig `json:"ecs,omitempty" yaml:"ecs,omitempty"`
	ASG *CapacityConfig `json:"asg,omitempty" yaml:"asg,omitempty"`
}

// ActionRequest is the invocation payload.
type ActionRequest struct {
	Action    Action        `json:"action" yaml:"action"`
	Resources []string      `json:"resources,omitempty" yaml:"resources,omitempty"`
	Config    RequestConfig `json:"config,omitempty" yaml:"config,omitempty"`
}

// Response is the invocation result. It serialises with the outcomes as the
// body when the request was accepted and with Message otherwise.
type Response struct {
	StatusCode int
	Outcomes   []Outcome
	Message    string
}

func (r Response) MarshalJSON() ([]byte, error) {
	var body any = r.Message
	if r.Outcomes != nil {
		body = r.Outcomes
	}
	return json.Marshal(struct {
		StatusCode int `json:"statusCode"`
		Body       any `json:"body"`
	}{r.StatusCode, body})
}

func (r *Response) UnmarshalJSON(data []byte) error {
	var raw struct {
		StatusCode int             `json:"statusCode"`
		Body       json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.StatusCode = raw.StatusCode
	r.Outcomes = nil
	r.Message = ""
	if len(raw.Body) > 0 && raw.Body[0] == '[' {
		return json.Unmarshal(raw.Body, &r.Outcomes)
	}
	return json.Unmarshal(raw.Body, &r.Message)
}

// Failures counts outcomes that did not succeed.
func (r Response) Failures() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Succeeded {
			n++
		}
	}
	return n
}

// Availability is the aggregate readiness verdict.
type Availability string

const (
	Available    Availability = "available"
	NotAvailable Availability = "not available"
)

// ReadinessResponse wraps a readiness verdict for callers.
type ReadinessResponse struct {
	StatusCode int           `json:"statusCode"`
	Body       ReadinessBody `json:"body"`
}

type ReadinessBody struct {
	RDSStatus Availability    `json:"rds_status"`
	CheckedAt strfmt.DateTime `json:"checked_at"`
}
