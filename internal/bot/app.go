// Package bot assembles the Telegram application: services, command
// registry, callback routing and conversation state.
package bot

import (
	"context"

	coreconfig "numbot/core/config"
	tg "numbot/core/telegram"
	"numbot/core/telegram/commands"
	tghelpers "numbot/core/telegram/helpers"
	"numbot/core/telegram/router"
	"numbot/core/telegram/state"
	adminsvc "numbot/internal/admin"
	"numbot/internal/auth"
	"numbot/internal/numbers"
	"numbot/internal/provider"
	"numbot/internal/store"

	tele "gopkg.in/telebot.v4"
)

// App wires configuration, services and handlers into run options for
// the telegram runtime.
type App struct {
	cfg      *coreconfig.Config
	fsm      state.Manager
	handlers *Handlers
}

// NewApp builds the application over an initialized store and provider
// client.
func NewApp(cfg *coreconfig.Config, st store.Store, pc provider.Client) *App {
	gate := auth.NewGate(st, pc, cfg.Telegram.AdminID)
	manager := numbers.NewManager(st, pc, gate)
	manager.InboxLimit = cfg.Provider.InboxLimit

	fsm := state.NewMemoryManager()
	h := &Handlers{
		gate:    gate,
		numbers: manager,
		fsm:     fsm,
	}
	h.admin = adminsvc.NewService(st, cfg.Telegram.AdminID, func(_ context.Context, userID int64, text string) error {
		return h.notify(userID, text)
	})
	h.registerFSM()

	return &App{cfg: cfg, fsm: fsm, handlers: h}
}

// CoreConfig exposes the embedded core configuration.
func (a *App) CoreConfig() *coreconfig.Config { return a.cfg }

// TelegramRunOptions assembles the registry, routes and middleware.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	h := a.handlers
	reg := tg.NewRegistry()

	reg.RegisterCommand("/start", commands.Command{Handler: h.onStart, Description: "Start and show the menu"})
	reg.RegisterCommand("/login", commands.Command{Handler: h.handleLogin, Description: "Bind your provider credential", Aliases: []string{btnLogin}})
	reg.RegisterCommand("/balance", commands.Command{Handler: h.handleBalance, Description: "Show provider account balance", Aliases: []string{btnBalance}})
	reg.RegisterCommand("/buy", commands.Command{Handler: h.handleBuy, Description: "Buy a new phone number", Aliases: []string{btnBuy}})
	reg.RegisterCommand("/numbers", commands.Command{Handler: h.handleMyNumbers, Description: "List your numbers", Aliases: []string{btnMyNumbers}})
	reg.RegisterCommand("/release", commands.Command{Handler: h.handleRelease, Description: "Release one of your numbers", Aliases: []string{btnRelease}})
	reg.RegisterCommand("/otp", commands.Command{Handler: h.handleOTP, Description: "Check a number for one-time codes", Aliases: []string{btnOTP}})
	reg.RegisterCommand("/logout", commands.Command{Handler: h.handleLogout, Description: "Unbind your provider credential", Aliases: []string{btnLogout}})

	reg.RegisterCommand("/approve", commands.Command{Handler: h.cmdApprove, Description: "Approve a pending user", AdminOnly: true})
	reg.RegisterCommand("/block", commands.Command{Handler: h.cmdBlock, Description: "Revoke a user's approval", AdminOnly: true})
	reg.RegisterCommand("/users", commands.Command{Handler: h.cmdUsers, Description: "List all users", AdminOnly: true})
	reg.RegisterCommand("/pending", commands.Command{Handler: h.cmdPending, Description: "Show the approval queue", AdminOnly: true})

	mustCallback(reg, cbApprove, h.onApproveCallback)
	mustCallback(reg, cbReleasePick, h.onReleasePick)
	mustCallback(reg, cbReleaseConfirm, h.onReleaseConfirm)
	mustCallback(reg, cbOTP, h.onOTPPick)
	mustCallback(reg, cbLogoutConfirm, h.onLogoutConfirm)
	reg.SetTextFallback(h.onText)

	rejectNonAdmin := func(c tele.Context) error {
		return tghelpers.SendMD(c, msgAdminOnly)
	}
	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID:       a.cfg.Telegram.AdminID,
		OnAdminReject: rejectNonAdmin,
	})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoute(a.fsm, reg, router.TextOptions{UnknownText: h.onText}))

	return tg.RunOptions{
		Config:      a.cfg,
		Registry:    reg,
		Middlewares: tg.DefaultMiddlewares(a.cfg, nil),
		Routes:      routes,
		OnStart: func(_ context.Context, rt tg.Runtime) error {
			h.attach(rt.Bot)
			return nil
		},
	}, nil
}

func mustCallback(reg *tg.Registry, key string, handler tele.HandlerFunc) {
	// Registration failures are wiring bugs; the registry already logs them.
	_ = reg.RegisterCallback(key, handler)
}
