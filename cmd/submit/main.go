package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/jsonx"
	"github.com/zeromicro/go-zero/core/logx"

	"ilowa-market-sol/internal/config"
	"ilowa-market-sol/internal/consts"
	"ilowa-market-sol/internal/logic/actions"
	"ilowa-market-sol/internal/logic/instruction"
	"ilowa-market-sol/internal/logic/session"
	"ilowa-market-sol/internal/svc"
	"ilowa-market-sol/internal/types"
	"ilowa-market-sol/pkg/logger"
)

var (
	configFile  = flag.String("f", "etc/markets.yaml", "the config file")
	action      = flag.String("action", "", "place-bet | claim | resolve | create | create-light")
	marketAddr  = flag.String("market", "", "market address (base58)")
	amountSol   = flag.String("amount", "", "bet amount in SOL, e.g. 0.05")
	side        = flag.String("side", "yes", "yes | no")
	compressed  = flag.Bool("compressed", false, "target a compressed market")
	question    = flag.String("question", "", "market question")
	category    = flag.String("category", "Other", "market category name")
	region      = flag.String("region", "Global", "market region name")
	resolveIn   = flag.Duration("resolve-in", 7*24*time.Hour, "time until the market resolves")
	isPrivate   = flag.Bool("private", false, "create a private market")
	authToken   = flag.String("auth-token", "", "cached wallet auth token")
	authAccount = flag.String("auth-account", "", "account the cached auth token belongs to")
)

func main() {
	flag.Parse()

	var c config.Config
	conf.MustLoad(*configFile, &c)
	if err := c.Validate(); err != nil {
		logx.Must(err)
	}
	if err := logger.Init(c.LogConf.ToLogOption()); err != nil {
		logx.Must(err)
	}
	defer logger.Sync()

	sc, err := svc.NewServiceContext(c)
	if err != nil {
		logx.Must(err)
	}
	defer sc.Close()
	if sc.Session == nil {
		logx.Must(errors.New("signer.endpoint is not configured"))
	}

	req, after, err := buildRequest(sc)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := sc.Session.Submit(ctx, req)
	printResult(res, err)
	if err != nil {
		os.Exit(1)
	}
	if after != nil {
		if err := after(ctx); err != nil {
			logx.Errorf("[submit] post-confirm step failed: %v", err)
		}
	}
}

// buildRequest 按 -action 组装请求；after 在确认成功后执行
func buildRequest(sc *svc.ServiceContext) (session.Request, func(context.Context) error, error) {
	req := session.Request{Label: *action}
	if *authAccount != "" {
		acc, err := types.TryPubkeyFromBase58(*authAccount)
		if err != nil {
			return req, nil, err
		}
		req.Auth = session.AuthCache{Token: *authToken, Account: acc}
		req.Signer = acc
	}

	b := sc.Builder
	switch *action {
	case "place-bet":
		market, err := parseMarket()
		if err != nil {
			return req, nil, err
		}
		lamports, err := parseSol(*amountSol)
		if err != nil {
			return req, nil, err
		}
		yes, err := parseSide(*side)
		if err != nil {
			return req, nil, err
		}
		req.Build = actions.PlaceBet(b, market, lamports, yes, *compressed)
	case "claim":
		market, err := parseMarket()
		if err != nil {
			return req, nil, err
		}
		req.Build = actions.ClaimWinnings(b, market)
	case "resolve":
		market, err := parseMarket()
		if err != nil {
			return req, nil, err
		}
		yes, err := parseSide(*side)
		if err != nil {
			return req, nil, err
		}
		req.Build = actions.ResolveMarket(b, market, yes)
	case "create":
		var market types.Pubkey
		req.Build = actions.CreateMarket(b, instruction.CreateMarketArgs{
			Question:  *question,
			Category:  *category,
			Region:    *region,
			IsPrivate: *isPrivate,
			ExpiresAt: time.Now().Add(*resolveIn).Unix(),
		}, &market)
		return req, func(context.Context) error {
			logx.Infof("[submit] market created: %s", market)
			return nil
		}, nil
	case "create-light":
		cat, ok := consts.CategoryFromName(*category)
		if !ok {
			return req, nil, fmt.Errorf("unknown category %q", *category)
		}
		reg, ok := consts.RegionFromName(*region)
		if !ok {
			return req, nil, fmt.Errorf("unknown region %q", *region)
		}
		var market types.Pubkey
		q := *question
		req.Build = actions.CreateLightMarket(b, q, cat, reg, time.Now().Add(*resolveIn).Unix(), &market)
		return req, func(ctx context.Context) error {
			logx.Infof("[submit] light market created: %s", market)
			return actions.RememberLightMarket(ctx, sc.Ledger, sc.Labels, market, q)
		}, nil
	default:
		return req, nil, fmt.Errorf("unknown action %q", *action)
	}
	return req, nil, nil
}

func parseMarket() (types.Pubkey, error) {
	if *marketAddr == "" {
		return types.Pubkey{}, errors.New("-market is required")
	}
	return types.TryPubkeyFromBase58(*marketAddr)
}

func parseSide(s string) (bool, error) {
	switch s {
	case "yes":
		return true, nil
	case "no":
		return false, nil
	}
	return false, fmt.Errorf("side must be yes or no, got %q", s)
}

// parseSol 将 SOL 小数字符串换算为 lamports
func parseSol(s string) (uint64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return uint64(v*float64(consts.LamportsPerSol) + 0.5), nil
}

type output struct {
	Signature string   `json:"signature,omitempty"`
	State     string   `json:"state"`
	Signer    string   `json:"signer,omitempty"`
	Slot      uint64   `json:"slot,omitempty"`
	Rebuilt   bool     `json:"rebuilt,omitempty"`
	AuthToken string   `json:"authToken,omitempty"`
	Error     string   `json:"error,omitempty"`
	Logs      []string `json:"logs,omitempty"`
}

func printResult(res *session.Result, err error) {
	out := output{}
	if res != nil {
		out.State = res.State.String()
		if !res.Signature.IsZero() {
			out.Signature = res.Signature.String()
		}
		if !res.Signer.IsZero() {
			out.Signer = res.Signer.String()
		}
		out.Slot = res.Slot
		out.Rebuilt = res.Rebuilt
		out.AuthToken = res.Auth.Token
		out.Logs = res.Logs
	}
	if err != nil {
		out.Error = err.Error()
	}
	b, mErr := jsonx.Marshal(out)
	if mErr != nil {
		fmt.Printf("%+v\n", out)
		return
	}
	fmt.Println(string(b))
}
