package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/cskr/pubsub/v2"
	"github.com/d-led/presencecount"
	"github.com/spf13/pflag"
	"github.com/ulule/limiter/v3"
)

// limits the amount of buffered events per dashboard client
const pubSubChannelCapacity = 1024
const identityLookupTimeout = 10 * time.Second

var port *string
var hubUrl *string
var identityUrl *string
var identityPollInterval *time.Duration
var user *string
var connectRate *string

func main() {
	pflag.Parse()

	if !versioninfo.DirtyBuild {
		log.Println("Revision:", versioninfo.Revision)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := pubsub.New[string, presencecount.Event](pubSubChannelCapacity)
	defer events.Shutdown()

	realtime := presencecount.NewMemoryTransport(presencecount.NewHub())

	var memoryIdentity *presencecount.MemoryIdentityProvider
	presence := presencecount.NewPresence(events, chooseTransport(realtime), chooseIdentity(&memoryIdentity))

	server := presencecount.NewServerWithOptions(
		*port,
		presence,
		realtime,
		memoryIdentity,
		getConnectRate(),
	)
	go server.Run(*port)

	lookupCtx, cancelLookup := context.WithTimeout(ctx, identityLookupTimeout)
	presence.Start(lookupCtx)
	cancelLookup()

	<-ctx.Done()
	log.Println("shutting down")
	presence.Stop()
}

func init() {
	port = pflag.String("port", "8080", "port to run on")
	if portFromEnv, ok := os.LookupEnv("PORT"); ok {
		log.Println("Overriding the PORT via the environment variable")
		*port = portFromEnv
	}
	hubUrl = pflag.String("hub-url", presencecount.GetHubUrl(), "base url of a remote presence hub, empty to use the local one")
	identityUrl = pflag.String("identity-url", presencecount.GetIdentityUrl(), "base url of the identity service, empty to log in via /auth")
	identityPollInterval = pflag.Duration("identity-poll", 5*time.Second, "identity service poll interval")
	user = pflag.String("user", "", "user id to log in as on start (local identity only)")
	connectRate = pflag.String("connect-rate", presencecount.DefaultConnectRate, "realtime connection rate limit per client, e.g. 120-M")
}

func chooseTransport(local *presencecount.MemoryTransport) presencecount.Transport {
	if *hubUrl == "" {
		log.Println("using the local presence hub")
		return local
	}
	log.Println("using the remote presence hub at", *hubUrl)
	return presencecount.NewWebsocketTransport(*hubUrl)
}

func chooseIdentity(memoryIdentity **presencecount.MemoryIdentityProvider) presencecount.IdentityProvider {
	if *identityUrl != "" {
		log.Println("identity service:", *identityUrl)
		return presencecount.NewHTTPIdentityProvider(*identityUrl, *identityPollInterval)
	}
	p := presencecount.NewMemoryIdentityProvider()
	if *user != "" {
		p.Login(*user)
	}
	*memoryIdentity = p
	return p
}

func getConnectRate() limiter.Rate {
	rate, err := limiter.NewRateFromFormatted(*connectRate)
	if err != nil {
		log.Printf("provided connect rate ignored: '%s', using default: '%v'", *connectRate, presencecount.DefaultConnectRate)
		rate, _ = limiter.NewRateFromFormatted(presencecount.DefaultConnectRate)
	}
	return rate
}
