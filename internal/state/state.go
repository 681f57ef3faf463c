// Package state is the deploy screen's state container: typed actions and a
// pure reducer.
package state

import (
	"time"

	"github.com/Mohsinsiddi/w3deploy/internal/chain"
	"github.com/Mohsinsiddi/w3deploy/internal/records"
)

// Phase is where the deploy flow currently is.
type Phase int

const (
	Idle Phase = iota
	Editing
	Submitting
	Polling
	Confirmed
	Failed
	TimedOut
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Editing:
		return "editing"
	case Submitting:
		return "submitting"
	case Polling:
		return "polling"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed out"
	}
	return "unknown"
}

// Level is a flash message's severity.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// FlashMessage is a transient notice that clears itself after its lifetime.
type FlashMessage struct {
	ID      string
	Level   Level
	Text    string
	Expires time.Time
}

// State is everything the deploy screen renders.
type State struct {
	Wallet   string
	ChainID  int64
	Template string
	Input    string

	Phase        Phase
	TxHash       string
	PollAttempt  int
	LastDeployed *records.DeployedContract
	Unlocked     []records.Achievement
	Err          error

	Record  *records.UserRecord
	Flashes []FlashMessage
}

// Action is a typed transition.
type Action interface{ isAction() }

// Actions. Submitted with an empty TxHash means the transaction is being
// signed and sent; with a hash it is on its way to being mined.
type (
	Connected struct {
		Wallet  string
		ChainID int64
	}
	TemplateSelected struct{ ID string }
	InputChanged     struct{ Value string }
	Submitted        struct{ TxHash string }
	PollAttempted    struct {
		Attempt int
		State   chain.PollState
	}
	DeployConfirmed struct {
		Contract records.DeployedContract
		Unlocked []records.Achievement
	}
	DeployFailed   struct{ Err error }
	DeployTimedOut struct{ TxHash string }
	RecordSynced   struct{ Record *records.UserRecord }
	// Flash carries its own ID so Reduce stays deterministic.
	Flash struct {
		ID       string
		Level    Level
		Text     string
		At       time.Time
		Lifetime time.Duration
	}
	Tick struct{ Now time.Time }
)

func (Connected) isAction()        {}
func (TemplateSelected) isAction() {}
func (InputChanged) isAction()     {}
func (Submitted) isAction()        {}
func (PollAttempted) isAction()    {}
func (DeployConfirmed) isAction()  {}
func (DeployFailed) isAction()     {}
func (DeployTimedOut) isAction()   {}
func (RecordSynced) isAction()     {}
func (Flash) isAction()            {}
func (Tick) isAction()             {}

// Reduce applies a to s and returns the new state. s is not modified.
func Reduce(s State, a Action) State {
	s.Flashes = append([]FlashMessage(nil), s.Flashes...)

	switch a := a.(type) {
	case Connected:
		s.Wallet = records.NormalizeWallet(a.Wallet)
		s.ChainID = a.ChainID

	case TemplateSelected:
		s.Template = a.ID
		s.Input = ""
		s.Phase = Editing

	case InputChanged:
		s.Input = a.Value
		if s.Phase == Idle {
			s.Phase = Editing
		}

	case Submitted:
		s.TxHash = a.TxHash
		s.PollAttempt = 0
		s.Err = nil
		s.Phase = Submitting
		if a.TxHash != "" {
			s.Phase = Polling
		}

	case PollAttempted:
		if s.Phase == Polling {
			s.PollAttempt = a.Attempt
		}

	case DeployConfirmed:
		c := a.Contract
		s.Phase = Confirmed
		s.LastDeployed = &c
		s.Unlocked = append([]records.Achievement(nil), a.Unlocked...)
		if s.Record != nil && !s.Record.HasContract(c.Address) {
			rec := s.Record.Clone()
			rec.Contracts = records.MergeContracts(rec.Contracts, []records.DeployedContract{c})
			s.Record = rec
		}

	case DeployFailed:
		s.Phase = Failed
		s.Err = a.Err

	case DeployTimedOut:
		s.Phase = TimedOut
		s.TxHash = a.TxHash

	case RecordSynced:
		s.Record = a.Record.Clone()

	case Flash:
		s.Flashes = append(s.Flashes, FlashMessage{
			ID:      a.ID,
			Level:   a.Level,
			Text:    a.Text,
			Expires: a.At.Add(a.Lifetime),
		})

	case Tick:
		kept := s.Flashes[:0]
		for _, f := range s.Flashes {
			if a.Now.Before(f.Expires) {
				kept = append(kept, f)
			}
		}
		s.Flashes = kept
	}
	return s
}

// Busy reports whether a deployment is in flight.
func (s State) Busy() bool {
	return s.Phase == Submitting || s.Phase == Polling
}

// Count is the number of recorded contracts.
func (s State) Count() int {
	if s.Record == nil {
		return 0
	}
	return len(s.Record.Contracts)
}
