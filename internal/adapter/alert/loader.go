package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"sentinel-agent/internal/domain"
)

// Load reads and validates an alert JSON file. The attacker IP, victim IP,
// and attack type fields are required.
func Load(path string) (*domain.Alert, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("alert file not found: %s", path)
		}
		return nil, fmt.Errorf("read alert file: %w", err)
	}

	var a domain.Alert
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse alert file: %w", err)
	}

	if err := validate(&a); err != nil {
		return nil, err
	}
	return &a, nil
}

func validate(a *domain.Alert) error {
	for _, f := range []struct{ name, value string }{
		{"attacker_ip", a.AttackerIP},
		{"victim_ip", a.VictimIP},
		{"attack_type", a.AttackType},
	} {
		if f.value == "" {
			return fmt.Errorf("alert missing required field: %s", f.name)
		}
	}
	return nil
}

// orNA substitutes "N/A" for empty optional fields in display output.
func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// FormatInfo renders the alert as a banner block for operator display.
func FormatInfo(a *domain.Alert) string {
	sep := strings.Repeat("=", 80)

	port := "N/A"
	if a.DestinationPort > 0 {
		port = strconv.Itoa(a.DestinationPort)
	}

	lines := []string{
		sep,
		"Security Alert Details",
		sep,
		"Alert ID: " + orNA(a.AlertID),
		"Timestamp: " + orNA(a.Timestamp),
		"Attacker IP: " + a.AttackerIP,
		"Victim IP: " + a.VictimIP,
		"Attack Type: " + a.AttackType,
		"Payload: " + orNA(a.Payload),
		"Protocol: " + orNA(a.Protocol),
		"Destination Port: " + port,
	}
	if a.Description != "" {
		lines = append(lines, "Description: "+a.Description)
	}
	lines = append(lines, sep)
	return strings.Join(lines, "\n")
}

// UserMessage builds the analysis request sent to the coordinator agent as
// its first user turn.
func UserMessage(a *domain.Alert) string {
	port := "N/A"
	if a.DestinationPort > 0 {
		port = strconv.Itoa(a.DestinationPort)
	}

	var sb strings.Builder
	sb.WriteString("Analyze the following security alert and provide a risk assessment:\n\n")
	sb.WriteString("**Alert Details**\n")
	sb.WriteString("- Alert ID: " + orNA(a.AlertID) + "\n")
	sb.WriteString("- Timestamp: " + orNA(a.Timestamp) + "\n")
	sb.WriteString("- Attacker IP: " + a.AttackerIP + "\n")
	sb.WriteString("- Victim IP: " + a.VictimIP + "\n")
	sb.WriteString("- Attack Type: " + a.AttackType + "\n")
	sb.WriteString("- Payload: " + orNA(a.Payload) + "\n")
	sb.WriteString("- Protocol: " + orNA(a.Protocol) + "\n")
	sb.WriteString("- Destination Port: " + port + "\n")

	if len(a.AdditionalCtx) > 0 {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, a.AdditionalCtx, "", "  "); err == nil {
			sb.WriteString("\n**Additional Context**\n")
			sb.WriteString(pretty.String())
		}
	}

	return sb.String()
}
