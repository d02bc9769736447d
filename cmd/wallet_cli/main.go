package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"wallet-sync/internal/auth"
	"wallet-sync/internal/config"
	"wallet-sync/internal/db"
	"wallet-sync/internal/domain"
	"wallet-sync/internal/ledger"
	"wallet-sync/internal/notify"
	"wallet-sync/internal/realtime"
	"wallet-sync/internal/repository"
	"wallet-sync/internal/service"
)

// Consola interactiva: inicia sesion, muestra alertas en vivo y, si el
// usuario es administrador, permite operar retiros y depositos.
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	sessionStore := auth.NewMemorySessionStore()
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer redisClient.Close()
		sessionStore = auth.NewRedisSessionStore(redisClient)
	}

	profileRepo := repository.NewPgProfileRepository(pool)
	provider := auth.NewProvider(logger,
		auth.NewTokenService(cfg.JWTSecret, time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute),
		sessionStore,
		repository.NewPgCredentialRepository(pool),
	)
	bootstrapper := service.NewSessionBootstrapper(logger, provider,
		service.NewProfileStore(logger, profileRepo),
		service.NewAdminStatusResolver(logger, repository.NewPgAdminRepository(pool)),
	)

	var feed realtime.ChangeFeed
	if cfg.RealtimeBackend == config.RealtimeBackendRedis {
		feed = realtime.NewRedisFeed(redisClient, logger)
	} else {
		pgFeed := realtime.NewPgNotifyFeed(pool, logger, realtime.DefaultStreams)
		go func() { _ = pgFeed.Run(ctx) }()
		feed = pgFeed
	}
	dispatcher := notify.NewDispatcher(logger, nil, cfg.AlertBuffer)
	realtimeSync := service.NewRealtimeSync(logger, bootstrapper,
		realtime.NewSubscriptionManager(logger, feed, cfg.EventBuffer), dispatcher, nil)

	printer := notify.SinkFunc(func(_ context.Context, a domain.Alert) error {
		fmt.Printf("\n*** %s: %s ***\n", a.Title, a.Description)
		return nil
	})
	go notify.NewFanout(logger, printer).Run(ctx, dispatcher.Alerts())

	if err := bootstrapper.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer bootstrapper.Stop()
	go realtimeSync.Run(ctx)

	balanceRepo := repository.NewPgBalanceRepository(pool)
	directory := service.NewAdminDirectory(logger, profileRepo, balanceRepo, repository.NewPgWithdrawalRepository(pool))
	wallet := service.NewWalletView(logger, balanceRepo)
	ledgerClient := ledger.NewClient(cfg.LedgerBaseURL, time.Duration(cfg.LedgerTimeoutSecs)*time.Second, logger)

	for {
		st, err := bootstrapper.WaitReady(ctx)
		if err != nil {
			log.Fatal(err)
		}
		if st.User == nil {
			userID, ok := signInFlow(ctx, reader, provider)
			if !ok {
				return
			}
			if userID != "" {
				waitFor(ctx, bootstrapper, func(st service.UserState) bool {
					return st.UserID() == userID && !st.Loading
				})
			}
			continue
		}

		fmt.Printf("\n===== %s (%s) =====\n", st.User.Email, profileUID(st))
		fmt.Println("[1] Ver estado")
		fmt.Println("[6] Mis saldos")
		if st.IsAdmin {
			fmt.Println("[2] Listar retiros")
			fmt.Println("[3] Aprobar retiro")
			fmt.Println("[4] Acreditar deposito")
			fmt.Println("[5] Buscar usuarios")
		}
		fmt.Println("[8] Cerrar sesion")
		fmt.Println("[9] Salir")
		fmt.Print("Selecciona una opcion: ")

		line, _ := reader.ReadString('\n')
		switch strings.TrimSpace(line) {
		case "1":
			fmt.Printf("usuario=%s admin=%v perfil=%s\n", st.UserID(), st.IsAdmin, profileUID(st))
		case "2":
			if st.IsAdmin {
				listWithdrawals(ctx, directory)
			}
		case "3":
			if st.IsAdmin {
				approveFlow(ctx, reader, provider, ledgerClient)
			}
		case "4":
			if st.IsAdmin {
				creditFlow(ctx, reader, provider, ledgerClient)
			}
		case "5":
			if st.IsAdmin {
				usersFlow(ctx, reader, directory)
			}
		case "6":
			showBalances(ctx, wallet, st.UserID())
		case "8":
			if err := provider.SignOut(ctx); err != nil {
				fmt.Printf("Error cerrando sesion: %v\n", err)
			}
			waitFor(ctx, bootstrapper, func(st service.UserState) bool {
				return st.User == nil && !st.Loading
			})
		case "9":
			return
		default:
			fmt.Println("Opcion invalida.")
		}
	}
}

func signInFlow(ctx context.Context, reader *bufio.Reader, provider *auth.Provider) (string, bool) {
	fmt.Println("===== Iniciar sesion (vacio para salir) =====")
	email := prompt(reader, "Email: ")
	if email == "" {
		return "", false
	}
	password := prompt(reader, "Password: ")
	session, err := provider.SignIn(ctx, email, password)
	if err != nil {
		fmt.Printf("No se pudo iniciar sesion: %v\n", err)
		return "", true
	}
	return session.UserID, true
}

// waitFor espera hasta que el bootstrapper publique un estado que cumpla cond.
func waitFor(ctx context.Context, b *service.SessionBootstrapper, cond func(service.UserState) bool) {
	states, cancel := b.Subscribe()
	defer cancel()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case st := <-states:
			if cond(st) {
				return
			}
		case <-timeout:
			return
		case <-ctx.Done():
			return
		}
	}
}

func listWithdrawals(ctx context.Context, directory *service.AdminDirectory) {
	withdrawals, err := directory.ListWithdrawals(ctx)
	if err != nil {
		fmt.Printf("Error listando retiros: %v\n", err)
		return
	}
	fmt.Printf("Pendientes: %d\n", service.PendingCount(withdrawals))
	for _, w := range withdrawals {
		owner := w.UserID
		if w.Profile != nil && w.Profile.UID != "" {
			owner = w.Profile.UID
		}
		fmt.Printf("#%d %s %s %s -> %s [%s]\n", w.ID, owner, w.Amount, w.Token, w.ToAddress, w.Status)
	}
}

func approveFlow(ctx context.Context, reader *bufio.Reader, provider *auth.Provider, client *ledger.Client) {
	id, err := strconv.ParseInt(prompt(reader, "ID del retiro: "), 10, 64)
	if err != nil {
		fmt.Println("ID invalido.")
		return
	}
	txHash := prompt(reader, "Hash de la transaccion: ")
	token, ok := accessToken(ctx, provider)
	if !ok {
		return
	}
	if err := client.ApproveWithdrawal(ctx, token, id, txHash); err != nil {
		fmt.Printf("Error aprobando retiro: %v\n", err)
		return
	}
	fmt.Println("Retiro aprobado.")
}

func creditFlow(ctx context.Context, reader *bufio.Reader, provider *auth.Provider, client *ledger.Client) {
	req := ledger.CreditDepositRequest{
		TargetUserID: prompt(reader, "ID del usuario: "),
		Token:        prompt(reader, "Token (BTC/ETH/USDT/USDC): "),
		Amount:       prompt(reader, "Monto: "),
		TxHash:       prompt(reader, "Hash de la transaccion: "),
	}
	token, ok := accessToken(ctx, provider)
	if !ok {
		return
	}
	if err := client.CreditDeposit(ctx, token, req); err != nil {
		fmt.Printf("Error acreditando deposito: %v\n", err)
		return
	}
	fmt.Println("Deposito acreditado.")
}

func usersFlow(ctx context.Context, reader *bufio.Reader, directory *service.AdminDirectory) {
	users, err := directory.ListUsers(ctx, prompt(reader, "Buscar (uid/email/id): "))
	if err != nil {
		fmt.Printf("Error listando usuarios: %v\n", err)
		return
	}
	for _, u := range users {
		fmt.Printf("%s %s %s\n", u.UID, u.Email, u.ID)
		for _, b := range u.Balances {
			fmt.Printf("    %s %s\n", b.Amount, b.Token)
		}
	}
}

func accessToken(ctx context.Context, provider *auth.Provider) (string, bool) {
	session, err := provider.CurrentSession(ctx)
	if err != nil || session == nil {
		fmt.Println("La sesion expiro, vuelve a iniciar sesion.")
		return "", false
	}
	return session.AccessToken, true
}

func profileUID(st service.UserState) string {
	if st.Profile == nil {
		return "sin perfil"
	}
	return st.Profile.UID
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func showBalances(ctx context.Context, wallet *service.WalletView, userID string) {
	balances, err := wallet.Balances(ctx, userID)
	if err != nil {
		fmt.Printf("Error cargando saldos: %v\n", err)
		return
	}
	if len(balances) == 0 {
		fmt.Println("Sin saldos")
		return
	}
	for _, b := range balances {
		fmt.Printf("  %-5s %s\n", b.Token, b.Amount)
	}
}
