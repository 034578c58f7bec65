package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"gas-auth/internal/auth"
	"gas-auth/internal/config"
	"gas-auth/internal/gas"
	"gas-auth/internal/storage"
	"gas-auth/internal/telemetry"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := zap.NewExample()
	defer logger.Sync()

	shutdownTelemetry := telemetry.Setup(ctx, "gas-auth-cli", cfg.OTelEndpoint, cfg.OTelInsecure, logger)
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = shutdownTelemetry(sctx)
	}()

	store, closeStore, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer closeStore()

	transports, err := gas.NewTransports(cfg.GASTransports, nil)
	if err != nil {
		log.Fatalf("transports: %v", err)
	}
	client, err := gas.NewClient(gas.Options{
		Endpoint:   cfg.GASURL,
		SheetID:    cfg.GASSheetID,
		Source:     cfg.GASSource,
		Origin:     cfg.GASOrigin,
		Timeout:    cfg.GASTimeout,
		Transports: transports,
	}, logger)
	if err != nil {
		log.Fatalf("gas client: %v", err)
	}

	manager := auth.NewManager(client, store, logger, auth.Options{
		RememberMeDuration: cfg.RememberMeDuration,
		SessionTimeout:     cfg.SessionTimeout,
	})
	manager.Subscribe(printEvent)
	go manager.KeepAlive(ctx, cfg.SessionTimeout)

	fmt.Println("Restaurando sesión...")
	if err := manager.Restore(ctx); err != nil && !errors.Is(err, auth.ErrSessionExpired) {
		fmt.Printf("No se pudo restaurar la sesión: %v\n", err)
	}

	for {
		printMenu(manager)
		choice, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		switch strings.ToLower(strings.TrimSpace(choice)) {
		case "1", "login":
			loginFlow(ctx, reader, manager)
		case "2", "whoami":
			whoami(manager)
		case "3", "users":
			listUsers(ctx, client, manager)
		case "4", "test":
			testConnection(ctx, client)
		case "5", "validate":
			if err := manager.Validate(ctx); err != nil {
				fmt.Printf("Sesión no válida: %v\n", err)
			} else {
				fmt.Println("Sesión válida.")
			}
		case "6", "logout":
			manager.Logout(ctx)
		case "0", "exit", "salir":
			fmt.Println("Hasta luego.")
			return
		default:
			fmt.Println("Opción inválida.")
		}
	}
}

func printMenu(m *auth.Manager) {
	fmt.Println()
	if user, ok := m.CurrentUser(); ok {
		fmt.Printf("===== Sesión: %s (%s) =====\n", user.Email, user.Role)
	} else {
		fmt.Println("===== Sin sesión =====")
	}
	fmt.Println("[1] Iniciar sesión")
	fmt.Println("[2] Usuario actual")
	fmt.Println("[3] Listar usuarios")
	fmt.Println("[4] Probar conexión")
	fmt.Println("[5] Validar sesión")
	fmt.Println("[6] Cerrar sesión")
	fmt.Println("[0] Salir")
	fmt.Print("Selecciona: ")
}

func printEvent(ev auth.Event) {
	switch ev.Type {
	case auth.EventLoginSuccess:
		if ev.User != nil {
			fmt.Printf("[evento] Bienvenido, %s\n", ev.User.Name)
		}
	case auth.EventLogout:
		fmt.Println("[evento] Sesión cerrada")
	case auth.EventSessionExpired:
		fmt.Println("[evento] Tu sesión expiró, vuelve a iniciar sesión")
	case auth.EventAuthError:
		fmt.Printf("[evento] Error de autenticación: %s\n", ev.Message)
	}
}

func loginFlow(ctx context.Context, reader *bufio.Reader, m *auth.Manager) {
	email := prompt(reader, "Email: ")
	password := prompt(reader, "Contraseña: ")
	remember := strings.EqualFold(prompt(reader, "¿Recordarme? [s/N]: "), "s")

	_, err := m.Login(ctx, auth.Credentials{Email: email, Password: password, RememberMe: remember})
	var verr *auth.ValidationError
	if errors.As(err, &verr) {
		for _, field := range []string{auth.FieldEmail, auth.FieldPassword} {
			if msg, ok := verr.Field(field); ok {
				fmt.Printf("  %s: %s\n", field, msg)
			}
		}
	}
}

func whoami(m *auth.Manager) {
	user, ok := m.CurrentUser()
	if !ok {
		fmt.Println("No hay sesión activa.")
		return
	}
	fmt.Printf("Email: %s\nNombre: %s\nRol: %s\nEstado: %s\n", user.Email, user.Name, user.Role, m.State())
}

func listUsers(ctx context.Context, client *gas.Client, m *auth.Manager) {
	if !m.IsLoggedIn() {
		fmt.Println("Inicia sesión primero.")
		return
	}
	users, err := client.GetUsers(ctx)
	if err != nil {
		fmt.Printf("Error: %s\n", gas.UserMessage(err))
		return
	}
	for i, u := range users {
		fmt.Printf("[%d] %s - %s (%s)\n", i+1, u.Email, u.Name, u.Role)
	}
}

func testConnection(ctx context.Context, client *gas.Client) {
	msg, err := client.TestConnection(ctx)
	if err != nil {
		fmt.Printf("Sin conexión: %s\n", gas.UserMessage(err))
		return
	}
	fmt.Printf("Conexión OK: %s\n", msg)
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}
