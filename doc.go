// Package ircclient downloads a single file from an XDCC bot on IRC.
//
// The client registers on the network, looks the bot up with WHOIS, joins
// the channels the bot requires, asks for the pack and receives the file
// over a direct DCC connection, acknowledging every chunk. Partial files on
// disk are resumed with DCC RESUME.
//
// # Getting Started
//
//	cfg := config.Default()
//	cfg.Server = "irc.rizon.net"
//	cfg.Bot = "CR-HOLLAND|NEW"
//	cfg.Pack = 1234
//	cfg.Channels = []string{"#news"}
//
//	d, err := ircclient.New(cfg, os.Stdout)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := d.Download(context.Background())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Path)
//
// # Retries
//
// Each attempt ends with a [session.Outcome]. Connection failures, ack write
// failures and interrupted transfers are retried; the last two after a short
// pause. A bot that never answers, or that is not on the network, ends the
// download at once. At most [config.Config.MaxAttempts] attempts are made,
// after which the outcome is [session.RetriesExhausted].
//
// # Packages
//
//   - [github.com/mahirashab/irc-client/session]: negotiation state machine and outcomes
//   - [github.com/mahirashab/irc-client/engine]: the polling loop of one attempt
//   - [github.com/mahirashab/irc-client/dcc]: DCC offers, data channel and acknowledgments
//   - [github.com/mahirashab/irc-client/irc]: the IRC connection
//   - [github.com/mahirashab/irc-client/pack]: the transfer descriptor
//   - [github.com/mahirashab/irc-client/status]: terminal output
//
// # Logging
//
// All packages log through logrus with a "function" field. The CLI sends
// logs to stderr or a file so they never mix with the progress bar.
package ircclient
