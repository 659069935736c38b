package domain

import "encoding/json"

// Alert is a security alert under analysis. Only the three attacker/victim/
// attack-type fields are required; everything else is best-effort context.
type Alert struct {
	AlertID         string          `json:"alert_id,omitempty"`
	Timestamp       string          `json:"timestamp,omitempty"`
	AttackerIP      string          `json:"attacker_ip"`
	VictimIP        string          `json:"victim_ip"`
	AttackType      string          `json:"attack_type"`
	Payload         string          `json:"payload,omitempty"`
	Protocol        string          `json:"protocol,omitempty"`
	DestinationPort int             `json:"destination_port,omitempty"`
	Description     string          `json:"description,omitempty"`
	AdditionalCtx   json.RawMessage `json:"additional_context,omitempty"`
}
