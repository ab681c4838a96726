package forge

import (
	"github.com/jinzhu/configor"
)

type Config struct {
	SigmaForge struct {
		// ledger network, decides address prefixes: mainnet or testnet
		Network string `default:"mainnet" env:"FORGE_NETWORK"`
		// service identity presented to signer wallets
		ServiceName    string `default:"SigmaForge"`
		ServiceIconURL string
		ServiceDomain  string
	}

	// info for connecting to the node daemon
	Node struct {
		// REST API base, e.g. http://127.0.0.1:9053
		RestURL string `default:"http://127.0.0.1:9053" env:"FORGE_NODE_URL"`
		// api_key header value, if the node requires one
		APIKey string `env:"FORGE_NODE_APIKEY"`
		// optional ZMQ publisher for new-block events, e.g. tcp://127.0.0.1:9060
		ZMQ string
		// tip poll interval when ZMQ is absent or quiet
		PollSeconds int `default:"30"`
		// per-request timeout for node calls
		TimeoutSeconds int `default:"30"`
	}

	WebAPI struct {
		PubBind string `default:"localhost"`
		PubPort string `default:"8080"`
		// signer callback listener; loopback-only by default so only
		// a wallet bridge on this host can reach it
		CallbackBind string `default:"127.0.0.1"`
		CallbackPort string `default:"8385"`
		// externally reachable base URL for signer callbacks, if a
		// reverse proxy forwards them; defaults to the loopback bind
		CallbackBase string
	}

	Signing struct {
		// pending requests expire after this window
		ExpireAfterSec int `default:"900"`
		// expiry sweep cadence
		SweepSeconds int `default:"30"`
		// a request stuck in submitting longer than this is failed on restart
		BroadcastWindowSec int `default:"120"`
		// URI scheme launching the browser-extension signer
		DeepLinkScheme string `default:"sigmaforge"`
		// URI scheme launching mobile wallets
		MobileScheme string `default:"ergopay"`
	}

	Selector struct {
		MaxInputs int `default:"100"`
		// sweep dust boxes into a selection when they add no new tokens
		ConsolidateDust bool `default:"true"`
		// boxes at or below this value count as dust (nanoERG)
		DustThreshold int64 `default:"1000000"`
	}

	Store struct {
		// sqlite file path, or a postgres URL when DBDriver is postgres
		DBFile   string `default:"sigmaforge.db"`
		DBDriver string `default:"sqlite3"`
	}

	// log-file bus receivers
	Loggers map[string]LoggerConfig

	// outbound webhook bus receivers
	Callbacks map[string]CallbackConfig

	MQTT MQTTConfig
}

type LoggerConfig struct {
	Path  string
	Types []string
}

type CallbackConfig struct {
	Path       string
	HMACSecret string
	Types      []string
}

type MQTTConfig struct {
	Address  string
	ClientID string
	Username string
	Password string
	Queues   map[string]struct {
		TopicFilter string
		Types       []string
	}
}

func LoadConfig(confPath string) (Config, error) {
	c := Config{}
	err := configor.Load(&c, confPath)
	return c, err
}
