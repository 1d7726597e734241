package ledger

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the e2e context these steps need.
type TestContext interface {
	Do(ctx context.Context, method, path, as string, body any) error
	Address(name string) string
	Field(name string) (any, error)
	Status() int
}

// RegisterSteps registers ledger step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	s := &ledgerSteps{tc: tc}

	ctx.Step(`^the campaign is running at an exchange rate of "([^"]*)"$`, s.campaignRunningAtRate)
	ctx.Step(`^"([^"]*)" is verified by the owner$`, s.verifiedByOwner)
	ctx.Step(`^"([^"]*)" contributes "([^"]*)" ETH$`, s.contributes)
	ctx.Step(`^"([^"]*)" sends a direct transfer of "([^"]*)" ETH$`, s.directTransfer)
	ctx.Step(`^"([^"]*)" sets the exchange rate to "([^"]*)"$`, s.setsRate)
	ctx.Step(`^"([^"]*)" pauses the campaign$`, s.pauses)
	ctx.Step(`^"([^"]*)" unpauses the campaign$`, s.unpauses)

	ctx.Step(`^the response status should be (\d+)$`, s.statusShouldBe)
	ctx.Step(`^the error should be "([^"]*)"$`, s.errorShouldBe)
	ctx.Step(`^"([^"]*)" should have contributed "([^"]*)" ETH$`, s.shouldHaveContributed)
	ctx.Step(`^"([^"]*)" should have "([^"]*)" ETH of remaining capacity$`, s.shouldHaveRemaining)
	ctx.Step(`^the maximum contribution should be "([^"]*)" ETH$`, s.maxContributionShouldBe)
	ctx.Step(`^"([^"]*)" should be allowed to contribute "([^"]*)" ETH$`, s.shouldBeAllowed)
	ctx.Step(`^"([^"]*)" should not be allowed to contribute "([^"]*)" ETH because "([^"]*)"$`, s.shouldNotBeAllowed)

	ctx.After(func(c context.Context, _ *godog.Scenario, err error) (context.Context, error) {
		return c, s.restore(c)
	})
}

type ledgerSteps struct {
	tc TestContext
	// originalRate is restored after a scenario that changed the rate.
	originalRate string
	paused       bool
}

func (s *ledgerSteps) campaignRunningAtRate(ctx context.Context, rate string) error {
	if err := s.tc.Do(ctx, http.MethodGet, "/v1/campaign/stats", "", nil); err != nil {
		return err
	}
	current, err := s.tc.Field("exchange_rate")
	if err != nil {
		return err
	}
	if current != rate {
		s.originalRate = fmt.Sprint(current)
		return s.setRate(ctx, "owner", rate)
	}
	return nil
}

func (s *ledgerSteps) verifiedByOwner(ctx context.Context, party string) error {
	if err := s.tc.Do(ctx, http.MethodPost, "/v1/admin/verifications", "owner",
		map[string]string{"party": s.tc.Address(party)}); err != nil {
		return err
	}
	return s.expectStatus(http.StatusOK)
}

func (s *ledgerSteps) contributes(ctx context.Context, party, eth string) error {
	return s.send(ctx, "/v1/contributions", party, eth)
}

func (s *ledgerSteps) directTransfer(ctx context.Context, party, eth string) error {
	return s.send(ctx, "/v1/transfers", party, eth)
}

func (s *ledgerSteps) send(ctx context.Context, path, party, eth string) error {
	wei, err := toWei(eth)
	if err != nil {
		return err
	}
	return s.tc.Do(ctx, http.MethodPost, path, party, map[string]string{"amount": wei})
}

func (s *ledgerSteps) setsRate(ctx context.Context, who, rate string) error {
	if s.originalRate == "" {
		if err := s.tc.Do(ctx, http.MethodGet, "/v1/campaign/stats", "", nil); err != nil {
			return err
		}
		current, err := s.tc.Field("exchange_rate")
		if err != nil {
			return err
		}
		s.originalRate = fmt.Sprint(current)
	}
	return s.setRate(ctx, who, rate)
}

func (s *ledgerSteps) setRate(ctx context.Context, who, rate string) error {
	return s.tc.Do(ctx, http.MethodPut, "/v1/admin/exchange-rate", who, map[string]string{"rate": rate})
}

func (s *ledgerSteps) pauses(ctx context.Context, who string) error {
	if err := s.tc.Do(ctx, http.MethodPost, "/v1/admin/pause", who, nil); err != nil {
		return err
	}
	if s.tc.Status() == http.StatusOK {
		s.paused = true
	}
	return nil
}

func (s *ledgerSteps) unpauses(ctx context.Context, who string) error {
	if err := s.tc.Do(ctx, http.MethodPost, "/v1/admin/unpause", who, nil); err != nil {
		return err
	}
	if s.tc.Status() == http.StatusOK {
		s.paused = false
	}
	return nil
}

func (s *ledgerSteps) statusShouldBe(status int) error {
	return s.expectStatus(status)
}

func (s *ledgerSteps) errorShouldBe(code string) error {
	got, err := s.tc.Field("error")
	if err != nil {
		return err
	}
	if got != code {
		return fmt.Errorf("expected error %q, got %q", code, got)
	}
	return nil
}

func (s *ledgerSteps) shouldHaveContributed(ctx context.Context, party, eth string) error {
	if err := s.tc.Do(ctx, http.MethodGet, "/v1/parties/"+s.tc.Address(party), "", nil); err != nil {
		return err
	}
	return s.expectWei("cumulative_amount", eth)
}

func (s *ledgerSteps) shouldHaveRemaining(ctx context.Context, party, eth string) error {
	if err := s.tc.Do(ctx, http.MethodGet, "/v1/parties/"+s.tc.Address(party)+"/capacity", "", nil); err != nil {
		return err
	}
	return s.expectWei("remaining_capacity", eth)
}

func (s *ledgerSteps) maxContributionShouldBe(ctx context.Context, eth string) error {
	if err := s.tc.Do(ctx, http.MethodGet, "/v1/campaign/limit", "", nil); err != nil {
		return err
	}
	return s.expectWei("max_contribution_asset", eth)
}

func (s *ledgerSteps) shouldBeAllowed(ctx context.Context, party, eth string) error {
	allowed, reason, err := s.eligibility(ctx, party, eth)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("expected contribution to be allowed, got %q", reason)
	}
	return nil
}

func (s *ledgerSteps) shouldNotBeAllowed(ctx context.Context, party, eth, want string) error {
	allowed, reason, err := s.eligibility(ctx, party, eth)
	if err != nil {
		return err
	}
	if allowed {
		return fmt.Errorf("expected contribution to be denied")
	}
	if !strings.Contains(reason, want) {
		return fmt.Errorf("expected reason containing %q, got %q", want, reason)
	}
	return nil
}

func (s *ledgerSteps) eligibility(ctx context.Context, party, eth string) (bool, string, error) {
	wei, err := toWei(eth)
	if err != nil {
		return false, "", err
	}
	path := fmt.Sprintf("/v1/contributions/eligibility?party=%s&amount=%s", s.tc.Address(party), wei)
	if err := s.tc.Do(ctx, http.MethodGet, path, "", nil); err != nil {
		return false, "", err
	}
	allowed, err := s.tc.Field("allowed")
	if err != nil {
		return false, "", err
	}
	reason, err := s.tc.Field("reason")
	if err != nil {
		return false, "", err
	}
	return allowed == true, fmt.Sprint(reason), nil
}

func (s *ledgerSteps) expectStatus(status int) error {
	if got := s.tc.Status(); got != status {
		return fmt.Errorf("expected status %d, got %d", status, got)
	}
	return nil
}

func (s *ledgerSteps) expectWei(field, eth string) error {
	want, err := toWei(eth)
	if err != nil {
		return err
	}
	got, err := s.tc.Field(field)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("expected %s = %s wei, got %v", field, want, got)
	}
	return nil
}

// restore undoes campaign-wide changes so scenarios stay independent.
func (s *ledgerSteps) restore(ctx context.Context) error {
	if s.paused {
		if err := s.tc.Do(ctx, http.MethodPost, "/v1/admin/unpause", "owner", nil); err != nil {
			return err
		}
		s.paused = false
	}
	if s.originalRate != "" {
		if err := s.setRate(ctx, "owner", s.originalRate); err != nil {
			return err
		}
		s.originalRate = ""
	}
	return nil
}

// toWei converts a decimal ETH string to base units.
func toWei(eth string) (string, error) {
	r, ok := new(big.Rat).SetString(eth)
	if !ok {
		return "", fmt.Errorf("invalid ETH amount %q", eth)
	}
	r.Mul(r, new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)))
	if !r.IsInt() {
		return "", fmt.Errorf("ETH amount %q has more than 18 decimals", eth)
	}
	return r.Num().String(), nil
}
