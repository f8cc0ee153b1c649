package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/docopt/docopt-go"

	"github.com/liveviewhq/liveview/liveview"
)

const LiveviewCtlVersion = "0.1.0"

const DefaultApiUrl = "https://api.liveview.io"
const DefaultChangeUrl = "wss://changes.liveview.io"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := fmt.Sprintf(
		`Liveview control.

The default urls are:
    api_url: %s
    change_url: %s

Usage:
    liveviewctl login [--api_url=<api_url>]
        --user_auth=<user_auth>
        [--password=<password>]
    liveviewctl watch [--api_url=<api_url>]
        [--change_url=<change_url>]
        [--jwt=<jwt>]
        [--zone=<zone>]

Options:
    -h --help                  Show this screen.
    --version                  Show version.
    --api_url=<api_url>
    --change_url=<change_url>
    --user_auth=<user_auth>
    --password=<password>
    --jwt=<jwt>                Your platform JWT.
    --zone=<zone>              Show a single zone.`,
		DefaultApiUrl,
		DefaultChangeUrl,
	)

	opts, err := docopt.ParseArgs(usage, os.Args[1:], LiveviewCtlVersion)
	if err != nil {
		panic(err)
	}

	if login_, _ := opts.Bool("login"); login_ {
		login(opts)
	} else if watch_, _ := opts.Bool("watch"); watch_ {
		watch(opts)
	}
}

func login(opts docopt.Opts) {
	cancelCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer cancel()

	byJwt := loginAuth(cancelCtx, apiUrl(opts), opts)

	if parsed, err := liveview.ParseByJwtUnverified(byJwt); err == nil && parsed.NetworkName != "" {
		Err.Printf("network: %s\n", parsed.NetworkName)
	}
	Out.Printf("%s\n", byJwt)
}

func watch(opts docopt.Opts) {
	cancelCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer cancel()

	api := liveview.NewCatalogApiWithContext(cancelCtx, apiUrl(opts))
	defer api.Close()

	var byJwt string
	if byJwtAny := opts["--jwt"]; byJwtAny != nil {
		byJwt = byJwtAny.(string)
		api.SetByJwt(byJwt)
	}

	store := liveview.NewMemoryCollectionStore(cancelCtx)
	cache := liveview.NewSortOrderCacheWithDefaults(cancelCtx, api)
	refresh := liveview.NewRefreshPolicyWithDefaults(api, store)

	selector := liveview.NewViewSelector(cancelCtx, store, cache, refresh)
	defer selector.Close()

	if zone, err := opts.Int("--zone"); err == nil {
		selector.SetFilter(zone)
	} else {
		selector.Refresh()
	}

	var changeUrl string
	if changeUrlAny := opts["--change_url"]; changeUrlAny != nil {
		changeUrl = changeUrlAny.(string)
	} else {
		changeUrl = DefaultChangeUrl
	}
	notifier := liveview.NewRemoteChangeNotifierWithDefaults(cancelCtx, changeUrl, byJwt, selector)
	defer notifier.Close()

	removeStateCallback := selector.AddStateCallback(func(state liveview.SelectorState) {
		if state.Error != "" {
			Err.Printf("refresh error: %s\n", state.Error)
		}
	})
	defer removeStateCallback()

	views := selector.WatchViews(cancelCtx)
	for {
		select {
		case <-cancelCtx.Done():
			return
		case view := <-views:
			if view == nil {
				continue
			}
			lines := make([]string, 0, len(view))
			for _, item := range view {
				lines = append(lines, fmt.Sprintf("%s zone=%d (%s)", item.Name, item.Zone, item.Id))
			}
			Out.Printf("-- %d items --\n%s\n", len(view), strings.Join(lines, "\n"))
		}
	}
}

func apiUrl(opts docopt.Opts) string {
	if apiUrlAny := opts["--api_url"]; apiUrlAny != nil {
		return apiUrlAny.(string)
	}
	return DefaultApiUrl
}

func loginAuth(ctx context.Context, apiUrl string, opts docopt.Opts) string {
	userAuth := opts["--user_auth"].(string)

	var password string
	if passwordAny := opts["--password"]; passwordAny != nil {
		password = passwordAny.(string)
	} else {
		fmt.Print("Enter password: ")
		passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			panic(err)
		}
		password = string(passwordBytes)
		fmt.Printf("\n")
	}

	api := liveview.NewCatalogApiWithContext(ctx, apiUrl)
	defer api.Close()

	loginCallback, loginChannel := liveview.NewBlockingApiCallback[*liveview.AuthLoginResult]()

	loginArgs := &liveview.AuthLoginArgs{
		UserAuth: userAuth,
		Password: password,
	}

	api.AuthLogin(loginArgs, loginCallback)

	var loginResult liveview.ApiCallbackResult[*liveview.AuthLoginResult]
	select {
	case <-ctx.Done():
		os.Exit(0)
	case loginResult = <-loginChannel:
	}

	if loginResult.Error != nil {
		panic(loginResult.Error)
	}
	if loginResult.Result.Error != nil {
		panic(fmt.Errorf("%s", loginResult.Result.Error.Message))
	}

	return loginResult.Result.Network.ByJwt
}
