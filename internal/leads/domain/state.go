package domain

import (
	"fmt"
	"sort"
	"strings"
)

// State is a lead lifecycle state as stored in the lead store.
type State string

const (
	StateNewSubmission      State = "NEW_SUBMISSION"
	StateAnalyzing          State = "ANALYZING"
	StateBookingInviteSent  State = "BOOKING_INVITE_SENT"
	StateFollowUp1          State = "FOLLOW_UP_1"
	StateFollowUp2          State = "FOLLOW_UP_2"
	StateFollowUp3          State = "FOLLOW_UP_3"
	StateReplyReceived      State = "REPLY_RECEIVED"
	StateConversationActive State = "CONVERSATION_ACTIVE"
	StateBooked             State = "BOOKED"
	StateChecklistSent      State = "CHECKLIST_SENT"
	StateCallCompleted      State = "CALL_COMPLETED"
	StateQualified          State = "QUALIFIED"
	StateNotAFit            State = "NOT_A_FIT"
	StateScorecardDelivered State = "SCORECARD_DELIVERED"
	StatePaused             State = "PAUSED"
	StateUnsubscribed       State = "UNSUBSCRIBED"
	StateEscalated          State = "ESCALATED"
)

// Triggers that drive transitions.
const (
	TriggerAnalyze              = "analyze"
	TriggerSendBookingInvite    = "send_booking_invite"
	TriggerReceiveReply         = "receive_reply"
	TriggerEngageConversation   = "engage_conversation"
	TriggerContinueConversation = "continue_conversation"
	TriggerDetectBooking        = "detect_booking"
	TriggerSendChecklist        = "send_checklist"
	TriggerCompleteCall         = "complete_call"
	TriggerQualify              = "qualify"
	TriggerDisqualify           = "disqualify"
	TriggerDeliverScorecard     = "deliver_scorecard"
	TriggerPause                = "pause"
	TriggerUnsubscribe          = "unsubscribe"
	TriggerEscalate             = "escalate"
	TriggerResolveEscalation    = "resolve_escalation"
	TriggerResume               = "resume"
)

// MaxFollowUpStage is the last numbered follow-up state.
const MaxFollowUpStage = 3

// Transition is one row of the static transition table.
type Transition struct {
	From    State
	Trigger string
	To      State
}

type transitionKey struct {
	from    State
	trigger string
}

var allStates = []State{
	StateNewSubmission,
	StateAnalyzing,
	StateBookingInviteSent,
	StateFollowUp1,
	StateFollowUp2,
	StateFollowUp3,
	StateReplyReceived,
	StateConversationActive,
	StateBooked,
	StateChecklistSent,
	StateCallCompleted,
	StateQualified,
	StateNotAFit,
	StateScorecardDelivered,
	StatePaused,
	StateUnsubscribed,
	StateEscalated,
}

var knownStates = func() map[State]struct{} {
	m := make(map[State]struct{}, len(allStates))
	for _, s := range allStates {
		m[s] = struct{}{}
	}
	return m
}()

var terminalStates = map[State]struct{}{
	StateUnsubscribed:       {},
	StateNotAFit:            {},
	StateScorecardDelivered: {},
}

var outreachSequence = []State{StateBookingInviteSent, StateFollowUp1, StateFollowUp2, StateFollowUp3}

// postBooking leads can still opt out. They cannot pause: resume re-enters outreach.
var postBooking = []State{StateBooked, StateChecklistSent, StateCallCompleted, StateQualified}

func many(froms []State, trigger string, to State) []Transition {
	out := make([]Transition, 0, len(froms))
	for _, from := range froms {
		out = append(out, Transition{From: from, Trigger: trigger, To: to})
	}
	return out
}

func buildTransitions() []Transition {
	active := append(append([]State{}, outreachSequence...), StateReplyReceived, StateConversationActive)

	table := []Transition{
		{StateNewSubmission, TriggerAnalyze, StateAnalyzing},
		{StateAnalyzing, TriggerSendBookingInvite, StateBookingInviteSent},
		{StateBookingInviteSent, FollowUpTrigger(1), StateFollowUp1},
		{StateFollowUp1, FollowUpTrigger(2), StateFollowUp2},
		{StateFollowUp2, FollowUpTrigger(3), StateFollowUp3},
		{StateReplyReceived, TriggerEngageConversation, StateConversationActive},
		{StateConversationActive, TriggerContinueConversation, StateConversationActive},
		{StateBooked, TriggerSendChecklist, StateChecklistSent},
		{StateChecklistSent, TriggerCompleteCall, StateCallCompleted},
		{StateCallCompleted, TriggerQualify, StateQualified},
		{StateCallCompleted, TriggerDisqualify, StateNotAFit},
		{StateQualified, TriggerDeliverScorecard, StateScorecardDelivered},
		{StateReplyReceived, TriggerEscalate, StateEscalated},
		{StateConversationActive, TriggerEscalate, StateEscalated},
		{StateEscalated, TriggerResolveEscalation, StateConversationActive},
		{StatePaused, TriggerResume, StateBookingInviteSent},
	}
	table = append(table, many(outreachSequence, TriggerReceiveReply, StateReplyReceived)...)
	table = append(table, many(active, TriggerDetectBooking, StateBooked)...)
	table = append(table, many(active, TriggerPause, StatePaused)...)
	unsubscribable := append(append([]State{}, active...), StatePaused, StateEscalated)
	unsubscribable = append(unsubscribable, postBooking...)
	table = append(table, many(unsubscribable, TriggerUnsubscribe, StateUnsubscribed)...)
	return table
}

var (
	transitionTable = buildTransitions()
	transitionIndex = indexTransitions(transitionTable)
)

func indexTransitions(table []Transition) map[transitionKey]State {
	index := make(map[transitionKey]State, len(table))
	for _, t := range table {
		key := transitionKey{from: t.From, trigger: t.Trigger}
		if _, dup := index[key]; dup {
			panic(fmt.Sprintf("duplicate transition %s --%s-->", t.From, t.Trigger))
		}
		index[key] = t.To
	}
	return index
}

// Transitions returns a copy of the static transition table.
func Transitions() []Transition {
	out := make([]Transition, len(transitionTable))
	copy(out, transitionTable)
	return out
}

// States returns every known state.
func States() []State {
	out := make([]State, len(allStates))
	copy(out, allStates)
	return out
}

// ParseState normalizes raw store data into a State.
func ParseState(raw string) (State, bool) {
	s := State(strings.ToUpper(strings.TrimSpace(raw)))
	_, ok := knownStates[s]
	return s, ok
}

// IsKnown reports whether s is one of the enumerated states.
func (s State) IsKnown() bool {
	_, ok := knownStates[s]
	return ok
}

func (s State) String() string { return string(s) }

// CanTransition reports whether trigger is legal from state. Unknown input yields false.
func CanTransition(state State, trigger string) bool {
	_, ok := transitionIndex[transitionKey{from: state, trigger: trigger}]
	return ok
}

// NextState returns the destination of trigger from state.
func NextState(state State, trigger string) (State, bool) {
	to, ok := transitionIndex[transitionKey{from: state, trigger: trigger}]
	return to, ok
}

// ValidTriggers lists the triggers accepted from state, sorted.
func ValidTriggers(state State) []string {
	var triggers []string
	for key := range transitionIndex {
		if key.from == state {
			triggers = append(triggers, key.trigger)
		}
	}
	sort.Strings(triggers)
	return triggers
}

// IsTerminal reports whether state is a designated terminal state.
func IsTerminal(state State) bool {
	_, ok := terminalStates[state]
	return ok
}

// IsFollowUpState reports whether state is part of the outreach sequence.
func IsFollowUpState(state State) bool {
	return FollowUpStage(state) >= 0
}

// FollowUpStage maps outreach states to 0..3 and everything else to -1.
func FollowUpStage(state State) int {
	for i, s := range outreachSequence {
		if s == state {
			return i
		}
	}
	return -1
}

// FollowUpTrigger names the trigger that sends follow-up n.
func FollowUpTrigger(n int) string {
	return fmt.Sprintf("send_follow_up_%d", n)
}

// FollowUpState returns the state reached after follow-up n.
func FollowUpState(n int) (State, bool) {
	if n < 1 || n > MaxFollowUpStage {
		return "", false
	}
	return outreachSequence[n], true
}

// TriggerTowards finds the first trigger in table order that moves state to target.
// Decisions name target states, not triggers.
func TriggerTowards(state, target State) (string, bool) {
	for _, t := range transitionTable {
		if t.From == state && t.To == target {
			return t.Trigger, true
		}
	}
	return "", false
}
