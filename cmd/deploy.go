package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Mohsinsiddi/w3deploy/internal/chain"
	"github.com/Mohsinsiddi/w3deploy/internal/config"
	"github.com/Mohsinsiddi/w3deploy/internal/contract"
	"github.com/Mohsinsiddi/w3deploy/internal/records"
	"github.com/Mohsinsiddi/w3deploy/internal/state"
	"github.com/Mohsinsiddi/w3deploy/internal/ui"
	"github.com/Mohsinsiddi/w3deploy/internal/wallet"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	deployInput   string
	deployWallet  string
	deployNetwork string
	deployYes     bool
	deployPlain   bool
)

const deployLogFile = "deploy.log"

var deployCmd = &cobra.Command{
	Use:   "deploy [template]",
	Short: "Deploy a template contract through the factory",
	Long: `Deploy one of the built-in templates. The transaction goes to the
configured factory, which creates the contract and emits ContractDeployed.
The confirmed contract is added to your history and synced to the record store.

Without a template argument an interactive picker is shown.

Examples:
  w3deploy deploy counter
  w3deploy deploy string --input "hello base"
  w3deploy deploy calculator --testnet --yes
  w3deploy templates                       # list template IDs`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := ""
		if len(args) == 1 {
			id = args[0]
		}
		tpl, ok, err := chooseTemplate(id)
		if err != nil || !ok {
			return err
		}

		input := deployInput
		if tpl.HasInput() && input == "" {
			input = promptLine(os.Stdin, os.Stdout, tpl.Label())
		}
		// Fail on bad input before touching the wallet or the network.
		if _, err := contract.DeploymentBytecode(tpl, input); err != nil {
			return err
		}

		mgr := newWalletManager()
		w, err := loadSigningWallet(mgr, deployWallet)
		if err != nil {
			return err
		}
		c, err := resolveChain(deployNetwork)
		if err != nil {
			return err
		}
		if cfg.FactoryAddress == "" {
			return fmt.Errorf("%w: set one with `w3deploy config set-factory <address>`", contract.ErrNoFactory)
		}

		mode := cfg.NetworkMode
		pairs := [][2]string{
			{"Template", tpl.Name},
			{"From", ui.Addr(w.Address)},
			{"Network", c.NetworkName(mode)},
			{"Factory", ui.Addr(cfg.FactoryAddress)},
		}
		if tpl.HasInput() {
			pairs = append(pairs, [2]string{tpl.Label(), input})
		}
		fmt.Println(ui.KeyValueBlock("Deployment Preview", pairs))
		if !deployYes && !ui.Confirm("Deploy this contract?") {
			fmt.Println(ui.Meta("Cancelled."))
			return nil
		}

		ctx := cmd.Context()
		spin := ui.NewSpinner(fmt.Sprintf("Connecting to %s...", c.NetworkName(mode)))
		spin.Start()
		nodeURL, err := pickBestRPC(ctx, c)
		spin.Stop()
		if err != nil {
			return err
		}

		provider, err := wallet.NewLocalProvider(
			wallet.NewSigner(w, mgr.Keystore()),
			c.ID(mode),
			chainResolver(c, nodeURL),
			wallet.AutoApprove,
		)
		if err != nil {
			return err
		}
		source, err := receiptClient(c)
		if err != nil {
			return err
		}

		syncer, backend, err := openSyncer(ctx)
		if err != nil {
			return err
		}
		defer backend.Close()
		if _, err := syncer.Load(ctx, w.Address); err != nil && warnRemote(err) != nil {
			return err
		}

		if !deployPlain && !verbose {
			closeLog, err := logToFile(filepath.Join(cfg.Dir(), deployLogFile))
			if err != nil {
				return err
			}
			defer closeLog()
		}

		job := &deployJob{
			provider: wallet.Wrap(provider, wallet.WithLogging(log), wallet.BlockContractCreation()),
			records:  syncer,
			template: tpl,
			input:    input,
			chainID:  c.ID(mode),
			log:      log,
			now:      time.Now,
		}
		job.newDeployer = func(hooks ...contract.DeployerOption) (deployRunner, error) {
			opts := append([]contract.DeployerOption{
				contract.WithExplorer(func(h string) string { return c.TxURL(mode, h) }),
				contract.WithLogger(log),
			}, hooks...)
			return contract.NewDeployer(job.provider, source, cfg.FactoryAddress, opts...)
		}

		txURL := func(h string) string { return c.TxURL(mode, h) }
		var final state.State
		if deployPlain {
			final = job.runPlain(ctx, os.Stdout, txURL)
		} else {
			final, err = job.runTUI(ctx, c.NetworkName(mode), txURL)
			if err != nil {
				return err
			}
		}
		syncer.Wait()
		return deployOutcome(os.Stdout, final, func(addr string) string { return c.AddressURL(mode, addr) })
	},
}

func init() {
	deployCmd.Flags().StringVar(&deployInput, "input", "", "constructor argument for templates that take one")
	deployCmd.Flags().StringVar(&deployWallet, "wallet", "", "signing wallet name (default: config)")
	deployCmd.Flags().StringVar(&deployNetwork, "network", "", "chain to deploy to (default: config)")
	deployCmd.Flags().BoolVarP(&deployYes, "yes", "y", false, "skip the confirmation prompt")
	deployCmd.Flags().BoolVar(&deployPlain, "plain", false, "print progress lines instead of the interactive screen")
}

// chooseTemplate resolves id, or asks with the picker when id is empty.
// ok is false when the picker was cancelled.
func chooseTemplate(id string) (contract.Template, bool, error) {
	if id == "" {
		picked, err := ui.PickItem("Choose a contract to deploy", templateItems())
		if err != nil {
			return contract.Template{}, false, err
		}
		if picked == "" {
			fmt.Println(ui.Meta("Cancelled."))
			return contract.Template{}, false, nil
		}
		id = picked
	}
	tpl, err := contract.Lookup(id)
	if err != nil {
		return contract.Template{}, false, fmt.Errorf("%w: run `w3deploy templates` to see the IDs", err)
	}
	return tpl, true, nil
}

// chainResolver lets the provider switch chains. The deploy chain reuses the
// benchmarked node; other chains get their first candidate.
func chainResolver(deploy *chain.Chain, nodeURL string) wallet.ClientResolver {
	reg := chain.NewRegistry()
	return func(id int64) (*chain.EVMClient, error) {
		if id == deploy.ID(cfg.NetworkMode) {
			return chain.NewEVMClient(nodeURL), nil
		}
		c, err := reg.GetByChainID(id)
		if err != nil {
			return nil, err
		}
		urls := rpcCandidates(c)
		if len(urls) == 0 {
			return nil, fmt.Errorf("no RPC for chain %d", id)
		}
		return chain.NewEVMClient(urls[0]), nil
	}
}

func promptLine(in io.Reader, out io.Writer, label string) string {
	fmt.Fprintf(out, "%s: ", label)
	line, _ := bufio.NewReader(in).ReadString('\n')
	return strings.TrimRight(line, "\r\n")
}

// logToFile sends log output to path while the deploy screen owns the
// terminal.
func logToFile(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	log.SetOutput(f)
	return func() {
		log.SetOutput(os.Stderr)
		f.Close()
	}, nil
}

// ---------------------------------------------------------------------------
// Deployment job
// ---------------------------------------------------------------------------

type deployRunner interface {
	Deploy(ctx context.Context, req contract.DeployRequest) (*contract.DeployResult, error)
}

type deploymentRecorder interface {
	Snapshot(wallet string) *records.UserRecord
	RecordDeployment(ctx context.Context, wallet string, dc records.DeployedContract) (*records.UserRecord, []records.Achievement, error)
}

// deployJob runs one deployment and reports every step as a state action.
type deployJob struct {
	provider    wallet.Provider
	records     deploymentRecorder
	template    contract.Template
	input       string
	chainID     int64
	newDeployer func(hooks ...contract.DeployerOption) (deployRunner, error)
	log         logrus.FieldLogger
	now         func() time.Time
}

func (j *deployJob) flash(dispatch func(state.Action), level state.Level, text string) {
	dispatch(state.Flash{ID: uuid.NewString(), Level: level, Text: text, At: j.now(), Lifetime: config.FlashLifetime})
}

// run connects the wallet, deploys, and records the result.
func (j *deployJob) run(ctx context.Context, dispatch func(state.Action)) {
	account, err := connectAccount(ctx, j.provider)
	if err != nil {
		dispatch(state.DeployFailed{Err: err})
		return
	}
	dispatch(state.Connected{Wallet: account, ChainID: j.chainID})
	if rec := j.records.Snapshot(account); rec != nil {
		dispatch(state.RecordSynced{Record: rec})
	}
	dispatch(state.TemplateSelected{ID: j.template.ID})
	if j.input != "" {
		dispatch(state.InputChanged{Value: j.input})
	}

	d, err := j.newDeployer(
		contract.WithSubmitHook(func(hash string) { dispatch(state.Submitted{TxHash: hash}) }),
		contract.WithPollHook(func(attempt int, st chain.PollState) {
			dispatch(state.PollAttempted{Attempt: attempt, State: st})
		}),
	)
	if err != nil {
		dispatch(state.DeployFailed{Err: err})
		return
	}

	dispatch(state.Submitted{})
	res, err := d.Deploy(ctx, contract.DeployRequest{Template: j.template, Input: j.input, From: account})
	if err != nil {
		var timeout *chain.ReceiptTimeoutError
		if errors.As(err, &timeout) {
			dispatch(state.DeployTimedOut{TxHash: timeout.TxHash})
			return
		}
		dispatch(state.DeployFailed{Err: err})
		return
	}

	rec, unlocked, err := j.records.RecordDeployment(ctx, account, res.Contract)
	dispatch(state.DeployConfirmed{Contract: res.Contract, Unlocked: unlocked})
	if err != nil {
		j.log.WithField("wallet", account).WithError(err).Warn("recording deployment failed")
		j.flash(dispatch, state.LevelError, "Deployed, but saving to history failed: "+err.Error())
		return
	}
	dispatch(state.RecordSynced{Record: rec})
	j.flash(dispatch, state.LevelSuccess, fmt.Sprintf("%s deployed (%d total)", j.template.Name, len(rec.Contracts)))
}

// runTUI drives the bubbletea deploy screen. Detaching with q leaves the job
// running until it finishes.
func (j *deployJob) runTUI(ctx context.Context, network string, txURL func(string) string) (state.State, error) {
	var (
		last state.State
		done = make(chan struct{})
	)
	final, err := ui.RunDeploy(ui.NewDeployModel(state.State{}, network, txURL), func(dispatch func(state.Action)) {
		defer close(done)
		j.run(ctx, func(a state.Action) {
			last = state.Reduce(last, a)
			dispatch(a)
		})
	})
	if err != nil {
		return final, err
	}
	select {
	case <-done:
	default:
		spin := ui.NewSpinner("Finishing deployment in the background...")
		spin.Start()
		<-done
		spin.Stop()
	}
	return last, nil
}

// runPlain prints one line per state change.
func (j *deployJob) runPlain(ctx context.Context, out io.Writer, txURL func(string) string) state.State {
	var s state.State
	j.run(ctx, func(a state.Action) {
		prev := s
		s = state.Reduce(s, a)
		switch a := a.(type) {
		case state.Connected:
			fmt.Fprintln(out, ui.Info("connected "+ui.TruncateAddr(s.Wallet)))
		case state.Submitted:
			if a.TxHash == "" {
				fmt.Fprintln(out, ui.Info("sending transaction..."))
			} else {
				fmt.Fprintln(out, ui.Info("submitted "+txURL(a.TxHash)))
			}
		case state.PollAttempted:
			if s.PollAttempt != prev.PollAttempt && s.PollAttempt%10 == 0 {
				fmt.Fprintln(out, ui.Meta(fmt.Sprintf("  still waiting (%d/%d)", s.PollAttempt, config.ReceiptPollMaxAttempts)))
			}
		case state.Flash:
			fmt.Fprintln(out, ui.Info(a.Text))
		}
	})
	return s
}

// connectAccount asks the provider for its account.
func connectAccount(ctx context.Context, p wallet.Provider) (string, error) {
	raw, err := p.Request(ctx, "eth_requestAccounts")
	if err != nil {
		return "", fmt.Errorf("connecting wallet: %w", err)
	}
	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return "", fmt.Errorf("decoding accounts: %w", err)
	}
	if len(accounts) == 0 {
		return "", errors.New("wallet returned no accounts")
	}
	return accounts[0], nil
}

// deployOutcome writes the summary for the final state and turns failures
// into the command's error.
func deployOutcome(out io.Writer, s state.State, addressURL func(string) string) error {
	switch s.Phase {
	case state.Confirmed:
		c := s.LastDeployed
		pairs := [][2]string{
			{"Contract", ui.Addr(c.Address)},
			{"Tx", ui.Addr(c.TxHash)},
			{"Explorer", addressURL(c.Address)},
		}
		if c.GasSpent != "" {
			pairs = append(pairs, [2]string{"Gas", ui.FormatWei(c.GasSpent) + " ETH"})
		}
		fmt.Fprintln(out, ui.KeyValueBlock("Deployed "+c.ContractName, pairs))
		for _, a := range s.Unlocked {
			fmt.Fprintln(out, ui.Success("Achievement unlocked: " + a.Name))
		}
		fmt.Fprintln(out, ui.Meta(fmt.Sprintf("%d contract(s) deployed from this wallet", s.Count())))
		return nil
	case state.TimedOut:
		fmt.Fprintln(out, ui.Warn("The transaction is still pending: " + s.TxHash))
		fmt.Fprintln(out, ui.Hint("It may confirm later; follow it on the explorer. A late confirmation is not added to your history."))
		return nil
	case state.Failed:
		if errors.Is(s.Err, contract.ErrUserRejected) {
			fmt.Fprintln(out, ui.Meta("Transaction rejected."))
			return nil
		}
		return s.Err
	}
	return errors.New("deployment did not finish")
}
