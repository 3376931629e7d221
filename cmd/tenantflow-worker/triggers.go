package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TriggerMap routes domain events of a tenant to the workflow they start.
//
//	tenants:
//	  tenant-a:
//	    order.created: wf-order-processing
type TriggerMap struct {
	Tenants map[string]map[string]string `yaml:"tenants"`
}

func LoadTriggerMap(path string) (*TriggerMap, error) {
	if path == "" {
		return &TriggerMap{Tenants: map[string]map[string]string{}}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trigger map: %w", err)
	}

	return ParseTriggerMap(data)
}

func ParseTriggerMap(data []byte) (*TriggerMap, error) {
	var triggers TriggerMap
	if err := yaml.Unmarshal(data, &triggers); err != nil {
		return nil, fmt.Errorf("failed to parse trigger map: %w", err)
	}

	if triggers.Tenants == nil {
		triggers.Tenants = map[string]map[string]string{}
	}

	for tenantID, routes := range triggers.Tenants {
		for eventType, workflowID := range routes {
			if workflowID == "" {
				return nil, fmt.Errorf("tenant %s: event %s has no workflow", tenantID, eventType)
			}
		}
	}

	return &triggers, nil
}

// Lookup returns the workflow a tenant starts for an event type.
func (m *TriggerMap) Lookup(tenantID, eventType string) (string, bool) {
	workflowID, ok := m.Tenants[tenantID][eventType]

	return workflowID, ok
}
