package reward

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	QuizCompletion   = "QUIZ_COMPLETION"
	CodeVerification = "CODE_VERIFICATION"
	Vote             = "VOTE"
	DailyLogin       = "DAILY_LOGIN"
)

// Policy of one reward type. Zero limit means no limit
type Policy struct {
	Type            string        `toml:"-"`
	Amount          int64         `toml:"amount"`
	MaxPerDay       int           `toml:"max_per_day"`
	MaxPerUser      int           `toml:"max_per_user"` // per (account, type, reference)
	CooldownMinutes int           `toml:"cooldown_minutes"`
	MinBalance      int64         `toml:"min_balance"`
	MinAccountAge   time.Duration `toml:"min_account_age"`
}

func (p Policy) Cooldown() time.Duration {
	return time.Duration(p.CooldownMinutes) * time.Minute
}

func (p Policy) validate() error {
	switch {
	case p.Amount <= 0:
		return errors.New("amount must be positive")
	case p.MaxPerDay < 0 || p.MaxPerUser < 0 || p.CooldownMinutes < 0:
		return errors.New("limits must not be negative")
	case p.MinBalance < 0 || p.MinAccountAge < 0:
		return errors.New("eligibility thresholds must not be negative")
	default:
		return nil
	}
}

type Policies map[string]Policy

func DefaultPolicies() Policies {
	return Policies{
		QuizCompletion:   {Type: QuizCompletion, Amount: 15, MaxPerDay: 10, MaxPerUser: 1, CooldownMinutes: 1},
		CodeVerification: {Type: CodeVerification, Amount: 10, MaxPerDay: 20, MaxPerUser: 1, CooldownMinutes: 1},
		Vote:             {Type: Vote, Amount: 2, MaxPerDay: 50, MaxPerUser: 1},
		DailyLogin:       {Type: DailyLogin, Amount: 5, MaxPerDay: 1},
	}
}

func (p Policies) Types() []string {
	types := make([]string, 0, len(p))
	for t := range p {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

type policyFile struct {
	Rewards map[string]Policy `toml:"rewards"`
}

// LoadPolicies reads TOML file on top of default policies
// Reward described in the file replaces the default one entirely:
//
//	[rewards.QUIZ_COMPLETION]
//	amount = 20
//	max_per_day = 5
//	max_per_user = 1
//	cooldown_minutes = 2
//	min_account_age = "24h"
func LoadPolicies(path string) (Policies, error) {
	policies := DefaultPolicies()
	if path == "" {
		return policies, nil
	}

	var file policyFile
	md, err := toml.DecodeFile(path, &file)
	if err != nil {
		return nil, fmt.Errorf("error while reading reward policies. Err: %w", err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("unknown keys in reward policies: %s", strings.Join(keys, ", "))
	}

	for rewardType, policy := range file.Rewards {
		policy.Type = rewardType
		if err := policy.validate(); err != nil {
			return nil, fmt.Errorf("reward %s: %w", rewardType, err)
		}
		policies[rewardType] = policy
	}

	return policies, nil
}
