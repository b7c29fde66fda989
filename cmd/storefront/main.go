package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/curiomarket/storefront/internal/cart"
	"github.com/curiomarket/storefront/internal/cartsync"
	"github.com/curiomarket/storefront/internal/checkout"
	"github.com/curiomarket/storefront/internal/identity"
	"github.com/curiomarket/storefront/internal/orders"
	"github.com/curiomarket/storefront/internal/payments"
	"github.com/curiomarket/storefront/pkg/config"
	"github.com/curiomarket/storefront/pkg/logger"
	"github.com/curiomarket/storefront/pkg/metrics"
	"github.com/curiomarket/storefront/pkg/money"
	"github.com/curiomarket/storefront/pkg/redis"
	"github.com/curiomarket/storefront/pkg/square"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "storefront"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "storefront",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if cfg.Storage.Backend == config.StorageBackendRedis {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	}

	store, err := buildStore(cfg, redisClient)
	if err != nil {
		logg.Error(ctx, "failed to open cart storage", err)
		os.Exit(1)
	}
	logg.Info(logg.WithBackend(ctx, cfg.Storage.Backend), "cart storage ready")

	registry := prometheus.NewRegistry()
	storeMetrics := metrics.NewStorefrontMetrics(registry)

	var announce func(context.Context)
	if redisClient != nil {
		announce = cartsync.Announcer(redisClient, cfg.Sync.Channel, logg)
	}

	carts, err := cart.NewService(cart.ServiceParams{
		Store:    store,
		Logger:   logg,
		Metrics:  storeMetrics,
		Announce: announce,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cart service", err)
		os.Exit(1)
	}

	var source cartsync.SignalSource
	if redisClient != nil {
		source, err = cartsync.NewRedisSignal(ctx, redisClient, cfg.Sync.Channel, logg)
		if err != nil {
			logg.Error(ctx, "failed to subscribe to cart changes", err)
			os.Exit(1)
		}
	}

	channel, err := cartsync.NewChannel(cartsync.ChannelParams{
		Feed:         carts,
		Source:       source,
		Logger:       logg,
		PollInterval: cfg.Sync.PollInterval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create sync channel", err)
		os.Exit(1)
	}
	defer func() {
		if err := channel.Close(); err != nil {
			logg.Error(context.Background(), "error closing sync channel", err)
		}
	}()

	badge := cartsync.NewBadge()
	channel.Subscribe(badge.Apply)
	go channel.Run(ctx)

	resolver, err := identity.NewFileResolver(cfg.Identity.SessionTokenPath, cfg.Identity.ProfilePath, logg)
	if err != nil {
		logg.Error(ctx, "failed to create identity resolver", err)
		os.Exit(1)
	}

	orderClient, err := orders.NewClient(cfg.OrderService.BaseURL, cfg.OrderService.Timeout, logg)
	if err != nil {
		logg.Error(ctx, "failed to create order client", err)
		os.Exit(1)
	}

	squareClient, err := square.NewClient(ctx, cfg.Square, logg)
	if err != nil {
		logg.Error(ctx, "failed to create square client", err)
		os.Exit(1)
	}

	listener, err := payments.NewListener(payments.ListenerParams{
		Addr:     cfg.Listener.Addr,
		Logger:   logg,
		Registry: registry,
	})
	if err != nil {
		logg.Error(ctx, "failed to create payment listener", err)
		os.Exit(1)
	}
	go func() {
		if err := listener.Start(); err != nil {
			logg.Error(context.Background(), "payment listener stopped unexpectedly", err)
		}
	}()
	defer func() {
		if err := listener.Shutdown(context.Background()); err != nil {
			logg.Error(context.Background(), "error shutting down payment listener", err)
		}
	}()

	adapter, err := payments.NewAdapter(payments.AdapterParams{
		Links:         squareClient,
		Listener:      listener,
		ReturnBaseURL: cfg.Listener.ReturnURL(),
		Logger:        logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create payment adapter", err)
		os.Exit(1)
	}

	rate, err := cfg.Checkout.Rate()
	if err != nil {
		logg.Error(ctx, "failed to parse exchange rate", err)
		os.Exit(1)
	}

	orchestrator, err := checkout.NewOrchestrator(checkout.Params{
		Carts:    carts,
		Identity: resolver,
		Orders:   orderClient,
		Payments: adapter,
		Config: checkout.Config{
			SettlementCurrency: cfg.Checkout.SettlementCurrency,
			ExchangeRate:       rate,
			MinorUnitScale:     cfg.Checkout.MinorUnitScale,
			RedirectDelay:      cfg.Checkout.RedirectDelay,
		},
		Logger:  logg,
		Metrics: storeMetrics,
		OnPaymentPage: func(url string) {
			fmt.Printf("open this page to pay: %s\n", url)
		},
		Redirect: func(reference string) {
			fmt.Printf("order %s confirmed, see your orders page for details\n", reference)
		},
	})
	if err != nil {
		logg.Error(ctx, "failed to create checkout orchestrator", err)
		os.Exit(1)
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"env":     cfg.App.Env,
		"backend": cfg.Storage.Backend,
		"addr":    cfg.Listener.Addr,
	}), "storefront ready")

	runShell(ctx, carts, channel, badge, orchestrator)
}

func buildStore(cfg *config.Config, redisClient *redis.Client) (cart.Store, error) {
	switch cfg.Storage.Backend {
	case config.StorageBackendSQLite:
		return cart.NewSQLiteStore(cfg.Storage.SQLitePath)
	case config.StorageBackendRedis:
		return cart.NewRedisStore(redisClient, redisClient.CartKey("default"))
	default:
		return cart.NewFileStore(cfg.Storage.FilePath)
	}
}

const shellHelp = `commands:
  add <id> <name> <price> [qty]   add a product to the cart
  qty <id> <delta>                change a line's quantity
  remove <id>                     remove a line
  list                            show the cart
  count                           show the badge count
  clear                           empty the cart
  checkout                        run checkout
  resume                          refresh from persisted state
  quit`

func runShell(ctx context.Context, carts cart.Service, channel *cartsync.Channel, badge *cartsync.Badge, orchestrator *checkout.Orchestrator) {
	fmt.Println(shellHelp)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Printf("[%d] > ", badge.Count())
		if !scanner.Scan() {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "add":
			if len(fields) < 4 {
				fmt.Println("usage: add <id> <name> <price> [qty]")
				continue
			}
			price, err := decimal.NewFromString(fields[3])
			if err != nil {
				fmt.Printf("bad price: %v\n", err)
				continue
			}
			qty := 1
			if len(fields) > 4 {
				if qty, err = strconv.Atoi(fields[4]); err != nil {
					fmt.Printf("bad quantity: %v\n", err)
					continue
				}
			}
			item := cart.Item{ProductID: fields[1], Name: fields[2], UnitPrice: price, Quantity: qty}
			if err := carts.AddItem(ctx, item); err != nil {
				fmt.Printf("add failed: %v\n", err)
			}
		case "qty":
			if len(fields) != 3 {
				fmt.Println("usage: qty <id> <delta>")
				continue
			}
			delta, err := strconv.Atoi(fields[2])
			if err != nil {
				fmt.Printf("bad delta: %v\n", err)
				continue
			}
			if err := carts.UpdateQuantity(ctx, fields[1], delta); err != nil {
				fmt.Printf("update failed: %v\n", err)
			}
		case "remove":
			if len(fields) != 2 {
				fmt.Println("usage: remove <id>")
				continue
			}
			if err := carts.RemoveItem(ctx, fields[1]); err != nil {
				fmt.Printf("remove failed: %v\n", err)
			}
		case "list":
			items := carts.Load(ctx)
			if len(items) == 0 {
				fmt.Println("cart is empty")
				continue
			}
			for _, item := range items {
				fmt.Printf("  %s x%d  %s  (%s)\n", item.Name, item.Quantity, money.Format(item.UnitPrice), item.ProductID)
			}
			fmt.Printf("  total: %s\n", money.Format(carts.Total(ctx)))
		case "count":
			fmt.Println(badge.Count())
		case "clear":
			if err := carts.Clear(ctx); err != nil {
				fmt.Printf("clear failed: %v\n", err)
			}
		case "checkout":
			session, err := orchestrator.Execute(ctx)
			if session != nil && session.Message != "" {
				fmt.Println(session.Message)
			} else if err != nil {
				fmt.Printf("checkout failed: %v\n", err)
			}
		case "resume":
			channel.Resume()
		case "quit", "exit":
			return
		case "help":
			fmt.Println(shellHelp)
		default:
			fmt.Printf("unknown command %q (try help)\n", fields[0])
		}
	}
}
