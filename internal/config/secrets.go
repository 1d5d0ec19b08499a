package config

// RedactedConfig returns a copy of cfg with sensitive fields replaced by
// "***" so the active configuration can be logged safely.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Wallet.PrivateKey)
	redact(&out.Wallet.KeyPassword)

	redact(&out.Polymarket.APIKey)
	redact(&out.Polymarket.APISecret)
	redact(&out.Polymarket.APIPassphrase)

	redact(&out.Betfair.AppKey)
	redact(&out.Betfair.SessionToken)

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	redact(&out.Redis.Password)

	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices and maps so the redacted copy cannot mutate the original.
	if cfg.Notify.Events != nil {
		out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	}
	if cfg.Resolver.MinConfidence != nil {
		out.Resolver.MinConfidence = make(map[string]float64, len(cfg.Resolver.MinConfidence))
		for k, v := range cfg.Resolver.MinConfidence {
			out.Resolver.MinConfidence[k] = v
		}
	}
	if cfg.Scan.FeeRates != nil {
		out.Scan.FeeRates = make(map[string]float64, len(cfg.Scan.FeeRates))
		for k, v := range cfg.Scan.FeeRates {
			out.Scan.FeeRates[k] = v
		}
	}

	return out
}

const redacted = "***"

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
