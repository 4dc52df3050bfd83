package dialog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var turnTime = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func keysOf(messages []Message) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.Key)
	}
	return out
}

func TestReduceConfirmFromStart(t *testing.T) {
	res := Reduce(Session{State: StateStart}, IntentConfirm, "1", turnTime)

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, "confirmed", res.Context[CtxOrderStatus])
	assert.Equal(t, []string{KeyConfirmOrder}, keysOf(res.Messages))
	require.Len(t, res.History, 1)
	assert.Equal(t, StateStart, res.History[0].State)
	assert.Equal(t, turnTime, res.History[0].At)
}

func TestReduceAddressChangeFlow(t *testing.T) {
	// 2 -> provide address -> 1
	res := Reduce(Session{State: StateStart}, IntentChangeAddress, "2", turnTime)
	assert.Equal(t, StateAwaitingNewAddress, res.State)
	assert.Equal(t, []string{KeyChangeAddress}, keysOf(res.Messages))

	addr := "Rua das Flores 99"
	res = Reduce(Session{State: res.State, Context: res.Context, History: res.History},
		IntentProvideAddress, addr, turnTime)
	assert.Equal(t, StateReviewNewAddress, res.State)
	assert.Equal(t, addr, res.Context[CtxCandidateAddress])
	require.Equal(t, []string{KeyAddressEcho, KeyConfirmAddressPrompt}, keysOf(res.Messages))
	assert.Equal(t, addr, res.Messages[0].Vars["address"])

	res = Reduce(Session{State: res.State, Context: res.Context, History: res.History},
		IntentConfirm, "1", turnTime)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, "address_change", res.Context[CtxOrderStatus])
	assert.Equal(t, addr, res.Context[CtxCandidateAddress])
	assert.Equal(t, []string{KeyChangeAddressResponse}, keysOf(res.Messages))

	// One checkpoint per actual transition.
	require.Len(t, res.History, 3)
	assert.Equal(t, StateStart, res.History[0].State)
	assert.Equal(t, StateAwaitingNewAddress, res.History[1].State)
	assert.Equal(t, StateReviewNewAddress, res.History[2].State)
}

func TestReduceReviewGoBack(t *testing.T) {
	sess := Session{
		State:   StateReviewNewAddress,
		Context: map[string]string{CtxCandidateAddress: "old candidate"},
	}
	res := Reduce(sess, IntentGoBack, "2", turnTime)

	assert.Equal(t, StateAwaitingNewAddress, res.State)
	assert.Equal(t, []string{KeyChangeAddress}, keysOf(res.Messages))
	// The candidate survives until a new one replaces it.
	assert.Equal(t, "old candidate", res.Context[CtxCandidateAddress])
	require.Len(t, res.History, 1)
	assert.Equal(t, StateReviewNewAddress, res.History[0].State)
}

func TestReduceReviewCancelReturnsToMenu(t *testing.T) {
	res := Reduce(Session{State: StateReviewNewAddress}, IntentCancelAddrChange, "3", turnTime)

	assert.Equal(t, StateAwaitingConfirm, res.State)
	assert.Equal(t, []string{KeyMainMenu}, keysOf(res.Messages))
	assert.Empty(t, res.Context[CtxOrderStatus])
	require.Len(t, res.History, 1)
	assert.Equal(t, StateReviewNewAddress, res.History[0].State)
}

func TestReduceInvalidReplies(t *testing.T) {
	cases := []struct {
		name      string
		state     State
		wantState State
		wantKeys  []string
	}{
		{"start", StateStart, StateAwaitingConfirm, []string{KeyInvalidResponse, KeyMainMenu}},
		{"awaiting confirm", StateAwaitingConfirm, StateAwaitingConfirm, []string{KeyInvalidResponse, KeyMainMenu}},
		{"awaiting address", StateAwaitingNewAddress, StateAwaitingNewAddress, []string{KeyInvalidResponse, KeyChangeAddress}},
		{"review", StateReviewNewAddress, StateReviewNewAddress, []string{KeyInvalidResponse, KeyConfirmAddressPrompt}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Reduce(Session{State: tc.state}, IntentUnknown, "9", turnTime)
			assert.Equal(t, tc.wantState, res.State)
			assert.Equal(t, tc.wantKeys, keysOf(res.Messages))
			assert.Empty(t, res.Context[CtxOrderStatus])
		})
	}
}

func TestReduceInvalidReplyCheckpoints(t *testing.T) {
	// Only the first turn from start checkpoints on a non-transition.
	res := Reduce(Session{State: StateStart}, IntentUnknown, "9", turnTime)
	require.Len(t, res.History, 1)

	res = Reduce(Session{State: StateAwaitingConfirm, History: res.History}, IntentUnknown, "9", turnTime)
	assert.Len(t, res.History, 1)
}

func TestReduceDoneIsTerminal(t *testing.T) {
	sess := Session{
		State:   StateDone,
		Context: map[string]string{CtxOrderStatus: "confirmed"},
		History: []Checkpoint{{State: StateStart, At: turnTime}},
	}
	for _, text := range []string{"1", "2", "hello"} {
		res := Reduce(sess, Classify(StateDone, text), text, turnTime)
		assert.Equal(t, StateDone, res.State)
		assert.Equal(t, []string{KeyAlreadyFinished}, keysOf(res.Messages))
		assert.Equal(t, "confirmed", res.Context[CtxOrderStatus])
		assert.Len(t, res.History, 1)
	}
}

func TestReduceCorruptStateRestarts(t *testing.T) {
	res := Reduce(Session{State: State("bogus")}, IntentUnknown, "1", turnTime)

	assert.Equal(t, StateStart, res.State)
	assert.Equal(t, []string{KeyFallbackRestart}, keysOf(res.Messages))
	require.Len(t, res.History, 1)
	assert.Equal(t, State("bogus"), res.History[0].State)
}

func TestReduceEmptyStateIsStart(t *testing.T) {
	res := Reduce(Session{}, IntentConfirm, "1", turnTime)
	assert.Equal(t, StateDone, res.State)
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	history := []Checkpoint{{State: StateStart, At: turnTime}}
	ctx := map[string]string{"existing": "value"}
	sess := Session{State: StateAwaitingConfirm, Context: ctx, History: history}

	res := Reduce(sess, IntentConfirm, "1", turnTime)

	assert.Equal(t, map[string]string{"existing": "value"}, ctx)
	assert.Len(t, history, 1)
	assert.Equal(t, "value", res.Context["existing"])
	assert.Len(t, res.History, 2)
}

func TestReduceAlwaysProducesMessages(t *testing.T) {
	states := []State{StateStart, StateAwaitingConfirm, StateAwaitingNewAddress, StateReviewNewAddress, StateDone}
	intents := []Intent{IntentConfirm, IntentChangeAddress, IntentProvideAddress, IntentGoBack, IntentCancelAddrChange, IntentUnknown}
	for _, st := range states {
		for _, in := range intents {
			res := Reduce(Session{State: st}, in, "x", turnTime)
			assert.NotEmpty(t, res.Messages, "state=%s intent=%s", st, in)
		}
	}
}
