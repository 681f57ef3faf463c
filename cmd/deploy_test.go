package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/Mohsinsiddi/w3deploy/internal/chain"
	"github.com/Mohsinsiddi/w3deploy/internal/contract"
	"github.com/Mohsinsiddi/w3deploy/internal/records"
	"github.com/Mohsinsiddi/w3deploy/internal/state"
	"github.com/Mohsinsiddi/w3deploy/internal/wallet"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

const (
	testAccount = "0xd8da6bf26964af9d7eed9e03e53415d37aa96045"
	testTx      = "0x00000000000000000000000000000000000000000000000000000000000000bb"
	testAddr    = "0x00000000000000000000000000000000000000c0"
)

func accountsProvider(accounts ...string) wallet.Provider {
	return wallet.ProviderFunc(func(_ context.Context, method string, _ ...any) (json.RawMessage, error) {
		if method == "eth_requestAccounts" {
			return json.Marshal(accounts)
		}
		return nil, &wallet.ProviderError{Code: wallet.CodeUnsupported, Message: method}
	})
}

type fakeRunner struct {
	res *contract.DeployResult
	err error
	req contract.DeployRequest
}

func (f *fakeRunner) Deploy(_ context.Context, req contract.DeployRequest) (*contract.DeployResult, error) {
	f.req = req
	return f.res, f.err
}

type fakeRecorder struct {
	rec      *records.UserRecord
	unlocked []records.Achievement
	err      error
	recorded []records.DeployedContract
}

func (f *fakeRecorder) Snapshot(string) *records.UserRecord { return f.rec.Clone() }

func (f *fakeRecorder) RecordDeployment(_ context.Context, _ string, dc records.DeployedContract) (*records.UserRecord, []records.Achievement, error) {
	f.recorded = append(f.recorded, dc)
	if f.err != nil {
		return nil, nil, f.err
	}
	next := f.rec.Clone()
	next.Contracts = append(next.Contracts, dc)
	return next, f.unlocked, nil
}

func newTestJob(t *testing.T, runner *fakeRunner, rec *fakeRecorder) *deployJob {
	t.Helper()
	tpl, err := contract.Lookup("string")
	require.NoError(t, err)
	l, _ := test.NewNullLogger()
	return &deployJob{
		provider:    accountsProvider(testAccount),
		records:     rec,
		template:    tpl,
		input:       "gm",
		chainID:     8453,
		newDeployer: func(...contract.DeployerOption) (deployRunner, error) { return runner, nil },
		log:         l,
		now:         func() time.Time { return time.UnixMilli(1_700_000_000_000) },
	}
}

func collect(j *deployJob) state.State {
	var s state.State
	j.run(context.Background(), func(a state.Action) { s = state.Reduce(s, a) })
	return s
}

func deployed() records.DeployedContract {
	return records.DeployedContract{
		Address:      testAddr,
		ContractType: "string",
		ContractName: "String Storage",
		TxHash:       testTx,
		Timestamp:    1_700_000_000_000,
		InputValue:   "gm",
		GasSpent:     "150000000000000",
	}
}

// ---------------------------------------------------------------------------
// deployJob.run
// ---------------------------------------------------------------------------

func TestDeployJobConfirmedRecordsContract(t *testing.T) {
	runner := &fakeRunner{res: &contract.DeployResult{Contract: deployed(), TxHash: testTx}}
	rec := &fakeRecorder{
		rec:      &records.UserRecord{},
		unlocked: []records.Achievement{{ID: "first", Name: "First Deploy", Unlocked: true}},
	}

	s := collect(newTestJob(t, runner, rec))

	assert.Equal(t, state.Confirmed, s.Phase)
	assert.Equal(t, testAccount, s.Wallet)
	assert.Equal(t, int64(8453), s.ChainID)
	assert.Equal(t, "string", s.Template)
	assert.Equal(t, "gm", s.Input)
	require.NotNil(t, s.LastDeployed)
	assert.Equal(t, testAddr, s.LastDeployed.Address)
	require.Len(t, s.Unlocked, 1)
	assert.Equal(t, "First Deploy", s.Unlocked[0].Name)
	assert.Equal(t, 1, s.Count())
	require.Len(t, s.Flashes, 1)
	assert.Equal(t, state.LevelSuccess, s.Flashes[0].Level)

	assert.Equal(t, testAccount, runner.req.From)
	assert.Equal(t, "gm", runner.req.Input)
	require.Len(t, rec.recorded, 1)
}

func TestDeployJobRecordFailureStillConfirms(t *testing.T) {
	runner := &fakeRunner{res: &contract.DeployResult{Contract: deployed(), TxHash: testTx}}
	rec := &fakeRecorder{rec: &records.UserRecord{}, err: errors.New("disk full")}

	s := collect(newTestJob(t, runner, rec))

	assert.Equal(t, state.Confirmed, s.Phase)
	require.Len(t, s.Flashes, 1)
	assert.Equal(t, state.LevelError, s.Flashes[0].Level)
	assert.Contains(t, s.Flashes[0].Text, "disk full")
}

func TestDeployJobTimeout(t *testing.T) {
	runner := &fakeRunner{err: &chain.ReceiptTimeoutError{TxHash: testTx, Attempts: 90}}
	rec := &fakeRecorder{rec: &records.UserRecord{}}

	s := collect(newTestJob(t, runner, rec))

	assert.Equal(t, state.TimedOut, s.Phase)
	assert.Equal(t, testTx, s.TxHash)
	assert.Empty(t, rec.recorded)

	var out bytes.Buffer
	assert.NoError(t, deployOutcome(&out, s, func(a string) string { return a }))
	assert.Contains(t, out.String(), testTx)
	assert.Contains(t, out.String(), "explorer")
	assert.NotContains(t, out.String(), "w3deploy sync", "sync cannot pick up a pending transaction")
}

func TestDeployJobRejected(t *testing.T) {
	runner := &fakeRunner{err: contract.ErrUserRejected}
	s := collect(newTestJob(t, runner, &fakeRecorder{rec: &records.UserRecord{}}))

	assert.Equal(t, state.Failed, s.Phase)
	assert.ErrorIs(t, s.Err, contract.ErrUserRejected)
	assert.NoError(t, deployOutcome(io.Discard, s, func(a string) string { return a }), "a rejection is not a command failure")
}

func TestDeployJobRevertedIsError(t *testing.T) {
	runner := &fakeRunner{err: &chain.TxFailedError{TxHash: testTx}}
	s := collect(newTestJob(t, runner, &fakeRecorder{rec: &records.UserRecord{}}))

	assert.Equal(t, state.Failed, s.Phase)
	var failed *chain.TxFailedError
	assert.ErrorAs(t, deployOutcome(io.Discard, s, func(a string) string { return a }), &failed)
}

func TestDeployJobNoAccounts(t *testing.T) {
	runner := &fakeRunner{}
	j := newTestJob(t, runner, &fakeRecorder{rec: &records.UserRecord{}})
	j.provider = accountsProvider()

	s := collect(j)

	assert.Equal(t, state.Failed, s.Phase)
	assert.EqualError(t, s.Err, "wallet returned no accounts")
	assert.Empty(t, runner.req.From, "deploy must not run without an account")
}

func TestDeployJobShowsExistingRecord(t *testing.T) {
	runner := &fakeRunner{err: contract.ErrUserRejected}
	existing := &records.UserRecord{Contracts: []records.DeployedContract{{Address: "0x01", ContractType: "counter"}}}

	s := collect(newTestJob(t, runner, &fakeRecorder{rec: existing}))

	require.NotNil(t, s.Record)
	assert.Equal(t, 1, s.Count())
}

func TestRunPlainPrintsProgress(t *testing.T) {
	runner := &fakeRunner{res: &contract.DeployResult{Contract: deployed(), TxHash: testTx}}
	j := newTestJob(t, runner, &fakeRecorder{rec: &records.UserRecord{}})

	var out bytes.Buffer
	s := j.runPlain(context.Background(), &out, func(h string) string { return "https://basescan.org/tx/" + h })

	assert.Equal(t, state.Confirmed, s.Phase)
	assert.Contains(t, out.String(), "connected")
	assert.Contains(t, out.String(), "sending transaction")
	assert.Contains(t, out.String(), "String Storage deployed (1 total)")
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func TestDeployOutcomeUnfinished(t *testing.T) {
	assert.Error(t, deployOutcome(io.Discard, state.State{Phase: state.Polling}, nil))
}

func TestPromptLineTrimsNewline(t *testing.T) {
	var out bytes.Buffer
	got := promptLine(strings.NewReader("hello base\r\n"), &out, "Text to store")
	assert.Equal(t, "hello base", got)
	assert.Equal(t, "Text to store: ", out.String())
}

func TestPromptLineEOF(t *testing.T) {
	var out bytes.Buffer
	assert.Equal(t, "42", promptLine(strings.NewReader("42"), &out, "Number"))
}

func TestChooseTemplateUnknown(t *testing.T) {
	_, ok, err := chooseTemplate("erc20")
	assert.False(t, ok)
	assert.ErrorIs(t, err, contract.ErrUnknownTemplate)
}

func TestChooseTemplateKnown(t *testing.T) {
	tpl, ok, err := chooseTemplate("counter")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "counter", tpl.ID)
}

func TestDeployCommandFlags(t *testing.T) {
	flags := deployCmd.Flags()
	for _, name := range []string{"input", "wallet", "network", "yes", "plain"} {
		assert.NotNil(t, flags.Lookup(name), "--%s flag should exist", name)
	}
	assert.Equal(t, "y", flags.Lookup("yes").Shorthand)
	assert.Error(t, deployCmd.Args(deployCmd, []string{"a", "b"}))
	assert.NoError(t, deployCmd.Args(deployCmd, nil))
}
