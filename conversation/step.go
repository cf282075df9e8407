// Package conversation implements the scripted conversation engine for the
// Omniaweb assistant: intent recognition, escalation policy, the step state
// machine and the static knowledge base that backs it.
package conversation

// Step identifies one node of the scripted conversation state machine.
//
// Every session carries exactly one current Step. Transitions are driven by
// the flow table in flow.go; dynamic steps compute their own successor.
type Step string

const (
	StepGreeting              Step = "greeting"
	StepServiceInquiry        Step = "service_inquiry"
	StepServiceDetail         Step = "service_detail"
	StepBusinessQualification Step = "business_qualification"
	StepLeadQualification     Step = "lead_qualification"
	StepContactCollection     Step = "contact_collection"
	StepEscalationPreparation Step = "escalation_preparation"
	StepSupportRequest        Step = "support_request"
	StepSupportDetail         Step = "support_detail"
	StepSupportQualification  Step = "support_qualification"
	StepGeneralInfo           Step = "general_info"
	StepFAQResponse           Step = "faq_response"
	StepHumanEscalation       Step = "human_escalation"

	// StepRetry and StepContinue are fallback states. They never appear in
	// the flow table; the engine resolves them to a reprompt or to the
	// session's previous step.
	StepRetry    Step = "retry"
	StepContinue Step = "continue"
)

var knownSteps = map[Step]struct{}{
	StepGreeting:              {},
	StepServiceInquiry:        {},
	StepServiceDetail:         {},
	StepBusinessQualification: {},
	StepLeadQualification:     {},
	StepContactCollection:     {},
	StepEscalationPreparation: {},
	StepSupportRequest:        {},
	StepSupportDetail:         {},
	StepSupportQualification:  {},
	StepGeneralInfo:           {},
	StepFAQResponse:           {},
	StepHumanEscalation:       {},
	StepRetry:                 {},
	StepContinue:              {},
}

// Valid reports whether s is a known flow step or one of the fallback steps.
func (s Step) Valid() bool {
	_, ok := knownSteps[s]
	return ok
}
