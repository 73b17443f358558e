package protocol

import (
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Badaboom1995/gekto-sub001/internal/model"
)

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"type":"chat","lizardId":"lizard-1","content":"hello"}`))
	require.NoError(t, err)
	assert.Equal(t, CmdChat, cmd.Type)
	assert.Equal(t, "lizard-1", cmd.LizardID)
	assert.Equal(t, "hello", cmd.Content)
}

func TestParseCommandRejectsMalformedJSON(t *testing.T) {
	_, err := ParseCommand([]byte(`{"type":`))
	assert.Error(t, err)
}

func TestParseCommandIgnoresUnknownFields(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"type":"kill","lizardId":"lizard-1","extra":true}`))
	require.NoError(t, err)
	assert.Equal(t, CmdKill, cmd.Type)
}

// Every outbound constructor stamps its envelope with the right type tag
// and survives a marshal round trip.
func TestOutboundEnvelopeTypeTags(t *testing.T) {
	plan := &model.ExecutionPlan{ID: "plan-1", Status: model.PlanStatusCreated}

	cases := []struct {
		envelope any
		want     string
	}{
		{NewInfo("/work"), EvtInfo},
		{NewPlannerState(model.StateReady), EvtPlannerState},
		{NewState("lizard-1", model.StateWorking), EvtState},
		{NewOutput("lizard-1", []byte("raw\r\n")), EvtOutput},
		{NewHistory("lizard-1", []byte("cached")), EvtHistory},
		{NewToolRunning("master", "Read", "main.go", "main.go"), EvtTool},
		{NewToolCompleted("master", "Read"), EvtTool},
		{NewPlannerText("plan-1", "thinking"), EvtPlannerText},
		{NewPlanCreated(plan), EvtPlanCreated},
		{NewPlannerChat("plan-1", "hi", 120), EvtPlannerChat},
		{NewPlannerRemove("plan-1", []string{"lizard-2"}), EvtPlannerRemove},
		{NewAgentsList(nil), EvtAgentsList},
		{NewKillAllResult(3), EvtKillAllResult},
		{NewKillResult("lizard-1", true), EvtKillResult},
		{NewError("boom"), EvtError},
	}

	for _, tc := range cases {
		data, err := json.Marshal(tc.envelope)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, tc.want, decoded["type"], "envelope %T", tc.envelope)
	}
}

// For any field contents, an inbound command survives a marshal/parse
// round trip unchanged.
func TestCommandRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	commandType := gen.OneConstOf(
		CmdListAgents, CmdDebugPool, CmdKillAll, CmdCreatePlan,
		CmdExecutePlan, CmdCancelPlan, CmdChat, CmdReset, CmdKill,
	)

	properties.Property("marshal then parse is identity", prop.ForAll(
		func(typ, lizardID, content, planID, prompt, mode string) bool {
			in := Command{
				Type:     typ,
				LizardID: lizardID,
				Content:  content,
				PlanID:   planID,
				Prompt:   prompt,
				Mode:     mode,
			}
			data, err := json.Marshal(in)
			if err != nil {
				return false
			}
			out, err := ParseCommand(data)
			if err != nil {
				return false
			}
			return *out == in
		},
		commandType,
		gen.AnyString(),
		gen.AnyString(),
		gen.AlphaString(),
		gen.AnyString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
