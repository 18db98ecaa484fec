package mqtt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"
)

const (
	COMMAND_SWITCH = "switch"
	COMMAND_NUMBER = "number"
)

var (
	ErrUnknownEntity  = errors.New("unknown entity")
	ErrInvalidPayload = errors.New("invalid payload")
)

// CommandToRequest resolves a parsed command through the entity index and returns the matching
// domain.SetSwitchRequest or domain.SetNumberRequest.
func CommandToRequest(index domain.EntityIndex, cmd ParsedMQTTCommand) (any, error) {
	ref, ok := index.Resolve(cmd.DeviceId)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, cmd.DeviceId)
	}
	switch {
	case cmd.Command == COMMAND_SWITCH && ref.Feature.Kind == domain.ENTITY_KIND_SWITCH:
		value, err := parseSwitchPayload(cmd.Payload)
		if err != nil {
			return nil, err
		}
		return domain.SetSwitchRequest{
			GatewayId: ref.GatewayId,
			Feature:   ref.Feature.Feature,
			Value:     value,
		}, nil
	case cmd.Command == COMMAND_NUMBER && ref.Feature.Kind == domain.ENTITY_KIND_NUMBER:
		value, err := strconv.ParseFloat(strings.TrimSpace(cmd.Payload), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, cmd.Payload)
		}
		return domain.SetNumberRequest{
			GatewayId: ref.GatewayId,
			Feature:   ref.Feature.Feature,
			Value:     value,
		}, nil
	}
	return nil, fmt.Errorf("%w: %s does not accept %s commands", ErrUnknownEntity, cmd.DeviceId, cmd.Command)
}

func parseSwitchPayload(payload string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(payload)) {
	case MQTT_PAYLOAD_ON, "true", "1":
		return true, nil
	case MQTT_PAYLOAD_OFF, "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: %s", ErrInvalidPayload, payload)
}

// ParsePowerPayload parses a grid power sample published by an external sensor, in watts.
func ParsePowerPayload(payload []byte, invert bool) (float64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPayload, string(payload))
	}
	if invert {
		value = -value
	}
	return value, nil
}

// GatewayEntityIndex indexes the writable entities of every configured gateway.
func GatewayEntityIndex(gateways []GatewayFeatures) domain.EntityIndex {
	index := domain.EntityIndex{}
	for _, gw := range gateways {
		for _, spec := range domain.GatewayFeatures {
			if spec.Kind != domain.ENTITY_KIND_SWITCH && spec.Kind != domain.ENTITY_KIND_NUMBER {
				continue
			}
			if gw.Enabled(spec.Feature) {
				index.Add(gw.Id, spec)
			}
		}
	}
	return index
}

type GatewayFeatures struct {
	Id      string
	Enabled func(domain.GatewayFeature) bool
}
