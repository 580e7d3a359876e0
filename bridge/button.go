package bridge

import (
	"context"
	"fmt"

	"github.com/victorjacobs/go-comfoconnect/homeassistant"
)

const payloadPress = "PRESS"

type buttonDescription struct {
	key   string
	name  string
	press func(ctx context.Context, ccb Controller) error
}

var buttonDefinitions = [...]buttonDescription{
	{
		key:  "reset_errors",
		name: "Reset errors",
		press: func(ctx context.Context, ccb Controller) error {
			return ccb.ClearErrors(ctx)
		},
	},
}

type Button struct {
	entity

	ccb         Controller
	description buttonDescription
}

func newButton(ccb Controller, bridgeID string, description buttonDescription) *Button {
	return &Button{
		entity: entity{
			platform:       homeassistant.PlatformButton,
			objectID:       description.key,
			uniqueID:       fmt.Sprintf("%v-%v", bridgeID, description.key),
			name:           description.name,
			entityCategory: homeassistant.EntityCategoryDiagnostic,
		},
		ccb:         ccb,
		description: description,
	}
}

func (b *Button) Configuration() any {
	return homeassistant.ButtonConfiguration{
		EntityConfiguration: b.baseConfiguration(),
		CommandTopic:        b.topic("press"),
		PayloadPress:        payloadPress,
	}
}

func (b *Button) Commands() map[string]CommandFunc {
	return map[string]CommandFunc{
		"press": func(ctx context.Context, payload string) error {
			if payload != payloadPress {
				return fmt.Errorf("unexpected payload %q", payload)
			}
			return b.Press(ctx)
		},
	}
}

func (b *Button) Press(ctx context.Context) error {
	return b.description.press(ctx, b.ccb)
}
