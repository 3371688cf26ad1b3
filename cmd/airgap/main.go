package main

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xarmian/voi-wallet-sub002/pkg/accounts"
	"github.com/xarmian/voi-wallet-sub002/pkg/config"
	"github.com/xarmian/voi-wallet-sub002/pkg/fountain"
	"github.com/xarmian/voi-wallet-sub002/pkg/keystore"
	"github.com/xarmian/voi-wallet-sub002/pkg/logger"
	"github.com/xarmian/voi-wallet-sub002/pkg/persistence"
	badgerPersistence "github.com/xarmian/voi-wallet-sub002/pkg/persistence/badger"
	memoryPersistence "github.com/xarmian/voi-wallet-sub002/pkg/persistence/memory"
	redisPersistence "github.com/xarmian/voi-wallet-sub002/pkg/persistence/redis"
	"github.com/xarmian/voi-wallet-sub002/pkg/protocol"
	"github.com/xarmian/voi-wallet-sub002/pkg/session"
	transactionSigner "github.com/xarmian/voi-wallet-sub002/pkg/signer"
	"github.com/xarmian/voi-wallet-sub002/pkg/signing"
	"github.com/xarmian/voi-wallet-sub002/pkg/txndecode"
	"github.com/xarmian/voi-wallet-sub002/pkg/types"
)

func main() {
	app := &cli.App{
		Name:  "airgap",
		Usage: "Air-gapped remote signing for Algorand-family accounts",
		Description: `Runs either side of an air-gapped signing pair.

The wallet device builds signing requests and displays them as optical
frames; the signer device scans them, shows the decoded transactions for
review, and answers with an optical stream of signatures. The two devices
only ever exchange data through QR frames.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "role",
				Usage:   "Device role: wallet or signer",
				EnvVars: []string{config.EnvAirgapRole},
				Value:   string(types.RoleSigner),
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "Directory for durable device state",
				EnvVars: []string{config.EnvAirgapDataDir},
				Value:   "./airgap-data",
			},
			&cli.StringFlag{
				Name:    "keystore-dir",
				Usage:   "Directory for sealed key files",
				EnvVars: []string{config.EnvAirgapKeystoreDir},
				Value:   "./airgap-keys",
			},
			&cli.StringFlag{
				Name:    "device-name",
				Usage:   "User-visible name exported in pairing payloads",
				EnvVars: []string{config.EnvAirgapDeviceName},
			},
			&cli.StringFlag{
				Name:    "network-id",
				Usage:   "Network identifier requests must carry",
				EnvVars: []string{config.EnvAirgapNetworkID},
				Value:   "voimain-v1.0",
			},
			&cli.StringFlag{
				Name:    "genesis-hash",
				Usage:   "Base64 genesis hash requests must carry",
				EnvVars: []string{config.EnvAirgapGenesisHash},
			},
			&cli.StringFlag{
				Name:    "persistence",
				Usage:   "Persistence backend: badger, memory, or redis",
				EnvVars: []string{config.EnvAirgapPersistenceType},
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Usage:   "Redis address (host:port) for the redis backend",
				EnvVars: []string{config.EnvAirgapRedisAddress},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password for the redis backend",
				EnvVars: []string{config.EnvAirgapRedisPassword},
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database number for the redis backend",
				EnvVars: []string{config.EnvAirgapRedisDB},
			},
			&cli.IntFlag{
				Name:    "frame-rate",
				Usage:   "Frames per second when playing an optical stream",
				EnvVars: []string{config.EnvAirgapFrameRate},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvAirgapVerbose},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Initialize the durable device identity for the configured role",
				Action: initCommand,
			},
			{
				Name:  "generate-account",
				Usage: "Generate a new local account in the sealed keystore",
				Flags: []cli.Flag{
					pinFlag(),
					&cli.StringFlag{
						Name:  "name",
						Usage: "Display name for the new account",
					},
				},
				Action: generateAccountCommand,
			},
			{
				Name:   "accounts",
				Usage:  "List wallet accounts and where their signing authority lives",
				Action: listAccountsCommand,
			},
			{
				Name:  "pair-export",
				Usage: "Export this signer device's pairing payload as optical frames",
				Flags: []cli.Flag{
					pinFlag(),
				},
				Action: pairExportCommand,
			},
			{
				Name:  "pair-import",
				Usage: "Import a scanned pairing payload and remember the signer device",
				Flags: []cli.Flag{
					framesFlag(),
				},
				Action: pairImportCommand,
			},
			{
				Name:  "paired",
				Usage: "List signer devices this wallet has paired with",
				Action: listPairedCommand,
			},
			{
				Name:  "unpair",
				Usage: "Forget a paired signer device",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "device",
						Usage:    "Device id of the paired signer to forget",
						Required: true,
					},
				},
				Action: unpairCommand,
			},
			{
				Name:  "request",
				Usage: "Build a signing request from unsigned transactions and play it as frames",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:     "txn",
						Usage:    "Base64 msgpack unsigned transaction, repeatable, group order",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "app-name",
						Usage: "Requesting app name shown on the signer device",
					},
				},
				Action: requestCommand,
			},
			{
				Name:  "match",
				Usage: "Match a scanned response stream against the originating request",
				Flags: []cli.Flag{
					framesFlag(),
					&cli.StringFlag{
						Name:     "request-frames",
						Usage:    "File with the originally played request frames",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "signer-device",
						Usage:    "Device id of the paired signer that answered",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "output",
						Usage: "File to write the signed transactions to, base64 one per line",
					},
				},
				Action: matchCommand,
			},
			{
				Name:  "show-request",
				Usage: "Decode a scanned signing request and print the transactions for review",
				Flags: []cli.Flag{
					framesFlag(),
				},
				Action: showRequestCommand,
			},
			{
				Name:  "sign",
				Usage: "Review a scanned signing request and answer with a signature stream",
				Flags: []cli.Flag{
					framesFlag(),
					pinFlag(),
					&cli.BoolFlag{
						Name:  "decline",
						Usage: "Refuse the request instead of signing it",
					},
					&cli.StringFlag{
						Name:  "decline-message",
						Usage: "Human-readable reason included with a decline",
						Value: "declined on device",
					},
				},
				Action: signCommand,
			},
			{
				Name:  "prune",
				Usage: "Remove processed-request records older than the retention window",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "older-than",
						Usage: "Retention window for processed-request records",
						Value: 30 * 24 * time.Hour,
					},
				},
				Action: pruneCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func pinFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "pin",
		Usage:    "Keystore PIN",
		Required: true,
	}
}

func framesFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "frames",
		Usage: "File with one scanned frame per line, or - for stdin",
		Value: "-",
	}
}

// deviceEnv is everything a subcommand needs: validated config, logger, and
// the opened persistence backend.
type deviceEnv struct {
	cfg    *config.DeviceConfig
	logger *zap.Logger
	store  persistence.IDeviceStatePersistence
}

func (e *deviceEnv) close() {
	if err := e.store.Close(); err != nil {
		e.logger.Sugar().Warnw("Failed to close persistence", "error", err)
	}
}

func openDevice(c *cli.Context) (*deviceEnv, error) {
	cfg := &config.DeviceConfig{
		Role:            types.DeviceRole(c.String("role")),
		DataDir:         c.String("data-dir"),
		KeystoreDir:     c.String("keystore-dir"),
		DeviceName:      c.String("device-name"),
		NetworkID:       c.String("network-id"),
		GenesisHash:     c.String("genesis-hash"),
		PersistenceType: config.PersistenceType(c.String("persistence")),
		RedisAddress:    c.String("redis-address"),
		RedisPassword:   c.String("redis-password"),
		RedisDB:         c.Int("redis-db"),
		FrameRate:       c.Int("frame-rate"),
		Verbose:         c.Bool("verbose"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	zapLogger, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Verbose})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	store, err := openPersistence(cfg, zapLogger)
	if err != nil {
		return nil, err
	}
	if err := store.HealthCheck(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("persistence health check failed: %w", err)
	}

	return &deviceEnv{cfg: cfg, logger: zapLogger, store: store}, nil
}

func openPersistence(cfg *config.DeviceConfig, zapLogger *zap.Logger) (persistence.IDeviceStatePersistence, error) {
	switch cfg.PersistenceType {
	case config.PersistenceTypeBadger:
		return badgerPersistence.NewBadgerPersistence(cfg.DataDir, zapLogger)
	case config.PersistenceTypeMemory:
		return memoryPersistence.NewMemoryPersistence(), nil
	case config.PersistenceTypeRedis:
		return redisPersistence.NewRedisPersistence(&redisPersistence.RedisConfig{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, zapLogger)
	default:
		return nil, fmt.Errorf("unknown persistence type %q", cfg.PersistenceType)
	}
}

func openKeystore(env *deviceEnv) (*keystore.KeyStore, error) {
	return keystore.NewKeyStore(env.cfg.KeystoreDir, env.logger)
}

func openAccounts(env *deviceEnv) (*accounts.AccountStore, error) {
	return accounts.NewAccountStore(env.cfg.DataDir, env.logger)
}

// loadDeviceState returns the stored identity, failing if init has not run.
func loadDeviceState(env *deviceEnv) (*persistence.DeviceState, error) {
	state, err := env.store.LoadDeviceState()
	if err != nil {
		return nil, fmt.Errorf("failed to load device state: %w", err)
	}
	if state == nil {
		return nil, fmt.Errorf("device not initialized, run 'airgap init' first")
	}
	if state.Role != env.cfg.Role {
		return nil, fmt.Errorf("device was initialized as %s, refusing to run as %s", state.Role, env.cfg.Role)
	}
	return state, nil
}

// initCommand sets up the durable identity. A signer device gets a generated
// device id that pairing payloads will carry for its lifetime.
func initCommand(c *cli.Context) error {
	env, err := openDevice(c)
	if err != nil {
		return err
	}
	defer env.close()

	existing, err := env.store.LoadDeviceState()
	if err != nil {
		return fmt.Errorf("failed to load device state: %w", err)
	}
	if existing != nil {
		return fmt.Errorf("device already initialized as %s (device id %s)", existing.Role, existing.DeviceID)
	}

	state := &persistence.DeviceState{
		Role:       env.cfg.Role,
		DeviceName: env.cfg.DeviceName,
	}
	if state.Role == types.RoleSigner {
		state.DeviceID = uuid.New().String()
	}
	if err := env.store.SaveDeviceState(state); err != nil {
		return fmt.Errorf("failed to save device state: %w", err)
	}

	fmt.Printf("Initialized %s device\n", state.Role)
	if state.DeviceID != "" {
		fmt.Printf("  device id: %s\n", state.DeviceID)
	}
	return nil
}

func generateAccountCommand(c *cli.Context) error {
	env, err := openDevice(c)
	if err != nil {
		return err
	}
	defer env.close()

	ks, err := openKeystore(env)
	if err != nil {
		return err
	}

	address, err := ks.GenerateAccount(c.String("pin"))
	if err != nil {
		return fmt.Errorf("failed to generate account: %w", err)
	}

	store, err := openAccounts(env)
	if err != nil {
		return err
	}
	if err := store.Add(&types.Account{
		Address: address,
		Name:    c.String("name"),
		Type:    types.AccountTypeLocal,
	}); err != nil {
		return fmt.Errorf("failed to record account: %w", err)
	}

	fmt.Printf("Generated account %s\n", address)
	return nil
}

func listAccountsCommand(c *cli.Context) error {
	env, err := openDevice(c)
	if err != nil {
		return err
	}
	defer env.close()

	store, err := openAccounts(env)
	if err != nil {
		return err
	}
	list, err := store.List()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No accounts")
		return nil
	}

	for _, acct := range list {
		line := fmt.Sprintf("%s  %s", acct.Address, acct.Type)
		if acct.Name != "" {
			line += fmt.Sprintf("  (%s)", acct.Name)
		}
		if acct.SignerDeviceID != "" {
			line += fmt.Sprintf("  device=%s", acct.SignerDeviceID)
		}
		if acct.AuthAddress != "" {
			line += fmt.Sprintf("  rekeyed-to=%s", acct.AuthAddress)
		}
		fmt.Println(line)
	}
	return nil
}

func pairExportCommand(c *cli.Context) error {
	env, err := openDevice(c)
	if err != nil {
		return err
	}
	defer env.close()

	state, err := loadDeviceState(env)
	if err != nil {
		return err
	}
	if state.Role != types.RoleSigner {
		return fmt.Errorf("pair-export runs on the signer device")
	}

	ks, err := openKeystore(env)
	if err != nil {
		return err
	}
	addresses, err := ks.ListAddresses()
	if err != nil {
		return err
	}
	if len(addresses) == 0 {
		return fmt.Errorf("keystore holds no accounts to export")
	}

	payload, err := session.BuildPairingExport(state.DeviceID, state.DeviceName, addresses, c.String("pin"), ks)
	if err != nil {
		return fmt.Errorf("failed to build pairing export: %w", err)
	}

	return playPayload(c, env, payload)
}

func pairImportCommand(c *cli.Context) error {
	env, err := openDevice(c)
	if err != nil {
		return err
	}
	defer env.close()

	if env.cfg.Role != types.RoleWallet {
		return fmt.Errorf("pair-import runs on the wallet device")
	}

	payload, err := scanPayload(c)
	if err != nil {
		return err
	}

	record, err := session.ImportPairing(payload, env.store)
	if err != nil {
		return fmt.Errorf("failed to import pairing: %w", err)
	}

	fmt.Printf("Paired with %s", record.DeviceID)
	if record.DeviceName != "" {
		fmt.Printf(" (%s)", record.DeviceName)
	}
	fmt.Printf(", %d account(s)\n", len(record.Addresses))
	for _, addr := range record.Addresses {
		fmt.Printf("  %s\n", addr)
	}
	return nil
}

func listPairedCommand(c *cli.Context) error {
	env, err := openDevice(c)
	if err != nil {
		return err
	}
	defer env.close()

	records, err := env.store.ListPairedSigners()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No paired signer devices")
		return nil
	}

	for _, rec := range records {
		last := "never"
		if rec.LastActivity > 0 {
			last = time.UnixMilli(rec.LastActivity).Format(time.RFC3339)
		}
		fmt.Printf("%s  accounts=%d  last-activity=%s", rec.DeviceID, len(rec.Addresses), last)
		if rec.DeviceName != "" {
			fmt.Printf("  (%s)", rec.DeviceName)
		}
		fmt.Println()
	}
	return nil
}

// unpairCommand is the only path that removes a paired-signer record; the
// subsystem itself never deletes them.
func unpairCommand(c *cli.Context) error {
	env, err := openDevice(c)
	if err != nil {
		return err
	}
	defer env.close()

	deviceID := c.String("device")
	record, err := env.store.LoadPairedSigner(deviceID)
	if err != nil {
		return fmt.Errorf("failed to load paired signer: %w", err)
	}
	if record == nil {
		return fmt.Errorf("no paired signer with device id %s", deviceID)
	}

	if err := env.store.DeletePairedSigner(deviceID); err != nil {
		return fmt.Errorf("failed to delete paired signer: %w", err)
	}

	env.logger.Sugar().Infow("Paired signer removed",
		"deviceId", deviceID,
		"accounts", len(record.Addresses),
	)
	fmt.Printf("Forgot signer device %s", deviceID)
	if record.DeviceName != "" {
		fmt.Printf(" (%s)", record.DeviceName)
	}
	fmt.Printf("; %d account(s) can no longer be signed for\n", len(record.Addresses))
	return nil
}

func showRequestCommand(c *cli.Context) error {
	payload, err := scanPayload(c)
	if err != nil {
		return err
	}
	if payload.Kind != protocol.KindRequest || payload.Request == nil {
		return fmt.Errorf("payload is %s, not a signing request", payload.Kind)
	}

	req := payload.Request
	fmt.Printf("Request %s  network=%s  txns=%d\n", req.ID, req.NetworkID, len(req.Txns))
	if req.Meta != nil && req.Meta.AppName != "" {
		fmt.Printf("  from: %s\n", req.Meta.AppName)
	}
	for _, st := range req.Txns {
		blob, err := base64.StdEncoding.DecodeString(st.Blob)
		if err != nil {
			return fmt.Errorf("txn %d: invalid blob encoding: %w", st.Index, err)
		}
		info, err := txndecode.Decode(blob)
		if err != nil {
			return fmt.Errorf("txn %d: %w", st.Index, err)
		}
		printTxn(st.Index, st.Signer, st.AuthAddr, info)
	}
	return nil
}

func printTxn(index int, signer, authAddr string, info *txndecode.DecodedInfo) {
	fmt.Printf("  [%d] %s  signer=%s", index, info.Category, signer)
	if authAddr != "" {
		fmt.Printf("  auth=%s", authAddr)
	}
	fmt.Println()
	if info.Receiver != "" {
		fmt.Printf("      to %s amount %d fee %d\n", info.Receiver, info.Amount, info.Fee)
	} else {
		fmt.Printf("      fee %d\n", info.Fee)
	}
	if info.RekeyTo != "" {
		fmt.Printf("      REKEY TO %s\n", info.RekeyTo)
	}
	if info.CloseTo != "" {
		fmt.Printf("      CLOSE TO %s\n", info.CloseTo)
	}
	if info.Note != "" {
		fmt.Printf("      note: %s\n", info.Note)
	}
}

func signCommand(c *cli.Context) error {
	env, err := openDevice(c)
	if err != nil {
		return err
	}
	defer env.close()

	if _, err := loadDeviceState(env); err != nil {
		return err
	}
	if env.cfg.Role != types.RoleSigner {
		return fmt.Errorf("sign runs on the signer device")
	}

	payload, err := scanPayload(c)
	if err != nil {
		return err
	}

	ks, err := openKeystore(env)
	if err != nil {
		return err
	}
	txnSigner := transactionSigner.NewKeystoreSigner(ks, c.String("pin"), env.logger)
	sess := session.NewSignerSession(env.store, txnSigner, env.logger)

	items, err := sess.Accept(payload)
	if err != nil {
		return fmt.Errorf("request rejected: %w", err)
	}

	fmt.Printf("Request %s  %d transaction(s)\n", payload.Request.ID, len(items))
	for _, item := range items {
		printTxn(item.Index, item.Signer, item.AuthAddr, item.Info)
	}

	var response *protocol.Payload
	if c.Bool("decline") {
		response, err = sess.Decline("user_declined", c.String("decline-message"))
		if err != nil {
			return err
		}
		fmt.Println("Declined")
	} else {
		response, err = sess.Approve(c.Context)
		if err != nil {
			return fmt.Errorf("signing failed: %w", err)
		}
		fmt.Printf("Signed %d transaction(s)\n", len(response.Response.Sigs))
	}

	return playPayload(c, env, response)
}

func pruneCommand(c *cli.Context) error {
	env, err := openDevice(c)
	if err != nil {
		return err
	}
	defer env.close()

	cutoff := time.Now().Add(-c.Duration("older-than"))
	removed, err := env.store.PruneProcessedRequests(cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune processed requests: %w", err)
	}

	fmt.Printf("Removed %d processed-request record(s)\n", removed)
	return nil
}

// requestCommand builds a sign_request from unsigned transactions, routes
// it through signing resolution, and plays it as an optical stream.
func requestCommand(c *cli.Context) error {
	env, err := openDevice(c)
	if err != nil {
		return err
	}
	defer env.close()

	if env.cfg.Role != types.RoleWallet {
		return fmt.Errorf("request runs on the wallet device")
	}

	store, err := openAccounts(env)
	if err != nil {
		return err
	}

	var txns []protocol.SignableTxn
	var group []types.Account
	for i, encoded := range c.StringSlice("txn") {
		blob, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return fmt.Errorf("txn %d: invalid base64: %w", i, err)
		}
		info, err := txndecode.Decode(blob)
		if err != nil {
			return fmt.Errorf("txn %d: %w", i, err)
		}
		acct, err := store.FindByAddress(info.Sender)
		if err != nil {
			return fmt.Errorf("txn %d: sender %s: %w", i, info.Sender, err)
		}
		group = append(group, *acct)
		txns = append(txns, protocol.SignableTxn{
			Index:    i,
			Blob:     encoded,
			Signer:   acct.Address,
			AuthAddr: acct.AuthAddress,
		})
	}

	resolved := signing.Resolve(group)
	switch resolved.Method {
	case signing.MethodRemoteSigner:
		// The air-gapped path this command exists for.
	case signing.MethodCannotSign:
		return fmt.Errorf("group cannot be signed: %s", resolved.Reason)
	default:
		return fmt.Errorf("group resolves to %s signing, not to a paired signer device", resolved.Method)
	}

	var meta *protocol.RequestMeta
	if name := c.String("app-name"); name != "" {
		meta = &protocol.RequestMeta{AppName: name}
	}
	payload := protocol.NewRequest(env.cfg.NetworkID, env.cfg.GenesisHash, txns, meta)

	fmt.Printf("Request %s for signer device(s) %s\n", payload.Request.ID, strings.Join(resolved.SignerDeviceIDs, ", "))
	return playPayload(c, env, payload)
}

// matchCommand validates a scanned response against the request it answers
// and emits the signed transactions.
func matchCommand(c *cli.Context) error {
	env, err := openDevice(c)
	if err != nil {
		return err
	}
	defer env.close()

	req, err := scanPayloadFrom(c.String("request-frames"))
	if err != nil {
		return fmt.Errorf("failed to reload request: %w", err)
	}
	resp, err := scanPayload(c)
	if err != nil {
		return err
	}

	sigs, err := session.MatchResponse(resp, req, c.String("signer-device"), env.store, env.logger)
	if err != nil {
		return fmt.Errorf("response rejected: %w", err)
	}

	if output := c.String("output"); output != "" {
		var sb strings.Builder
		for _, sig := range sigs {
			sb.WriteString(sig.Blob)
			sb.WriteString("\n")
		}
		if err := os.WriteFile(output, []byte(sb.String()), 0600); err != nil {
			return fmt.Errorf("failed to write signed transactions: %w", err)
		}
		fmt.Printf("Wrote %d signed transaction(s) to %s\n", len(sigs), output)
	} else {
		for _, sig := range sigs {
			fmt.Println(sig.Blob)
		}
	}
	return nil
}

// scanPayload reads frame lines from the --frames source and runs them
// through the fountain decoder until the payload reassembles.
func scanPayload(c *cli.Context) (*protocol.Payload, error) {
	return scanPayloadFrom(c.String("frames"))
}

func scanPayloadFrom(source string) (*protocol.Payload, error) {
	var reader *bufio.Scanner
	if source == "-" {
		reader = bufio.NewScanner(os.Stdin)
	} else {
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("failed to open frames file: %w", err)
		}
		defer f.Close()
		reader = bufio.NewScanner(f)
	}
	reader.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	decoder := fountain.NewDecoder()
	for reader.Scan() {
		line := strings.TrimSpace(reader.Text())
		if line == "" {
			continue
		}
		outcome, err := decoder.ProcessFrame(line)
		if err != nil && !outcome.Complete {
			// Misread or foreign frame, keep scanning.
			continue
		}
		if outcome.Complete {
			if !outcome.Success {
				return nil, fmt.Errorf("frame stream could not be reassembled: %v", err)
			}
			return protocol.Decode(string(outcome.Data))
		}
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("failed to read frames: %w", err)
	}
	return nil, fmt.Errorf("frame stream ended before the payload completed")
}

// playPayload encodes a payload into frames and prints them paced at the
// configured frame rate, the way a screen would cycle QR codes.
func playPayload(c *cli.Context, env *deviceEnv, payload *protocol.Payload) error {
	encoded, err := protocol.Encode(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	cfg := fountain.DefaultConfig
	cfg.FramesPerSecond = env.cfg.FrameRate
	result, err := fountain.Encode([]byte(encoded), cfg)
	if err != nil {
		return fmt.Errorf("failed to generate frames: %w", err)
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.FramesPerSecond), 1)
	for _, frame := range result.Frames {
		if err := limiter.Wait(c.Context); err != nil {
			return err
		}
		fmt.Println(frame)
	}

	env.logger.Sugar().Debugw("Played frame stream",
		"frames", result.FrameCount,
		"multiFrame", result.IsMultiFrame,
	)
	return nil
}
