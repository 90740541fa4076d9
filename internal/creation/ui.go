package creation

import (
	"context"
	"fmt"

	"github.com/ehmo/sovi/internal/automation"
)

// signupLocators are the accessibility ids the sign-up flow looks up.
// Mirrors session.loginLocators' role: a concrete contract this package
// drives against the live app build.
type signupLocators struct {
	usernameField string
	passwordField string
	emailField    string
	phoneField    string
	smsCodeField  string
	captchaField  string
	continueBtn   string
	skipBtn       string
}

var defaultSignupLocators = signupLocators{
	usernameField: "signup-username-field",
	passwordField: "signup-password-field",
	emailField:    "signup-email-field",
	phoneField:    "signup-phone-field",
	smsCodeField:  "signup-sms-code-field",
	captchaField:  "signup-captcha-answer-field",
	continueBtn:   "signup-continue-button",
	skipBtn:       "signup-skip-button",
}

func (r *Runner) driveSignupForm(ctx context.Context, client *automation.Client, username string) error {
	loc := defaultSignupLocators
	if err := r.setField(ctx, client, loc.usernameField, username); err != nil {
		return fmt.Errorf("fill username: %w", err)
	}
	return r.clickButton(ctx, client, loc.continueBtn)
}

func (r *Runner) solveCaptcha(ctx context.Context, client *automation.Client) error {
	shot, err := client.Screenshot(ctx)
	if err != nil {
		return fmt.Errorf("screenshot for captcha: %w", err)
	}
	answer, err := r.collaborators.Captcha.Solve(ctx, shot)
	if err != nil {
		return err
	}
	loc := defaultSignupLocators
	if err := r.setField(ctx, client, loc.captchaField, answer); err != nil {
		return fmt.Errorf("fill captcha answer: %w", err)
	}
	return r.clickButton(ctx, client, loc.continueBtn)
}

func (r *Runner) confirmEmail(ctx context.Context, client *automation.Client, verifyLink string) error {
	// verifyLink is not opened here or anywhere else in this package;
	// this step only taps the in-app continue button.
	return r.clickButton(ctx, client, defaultSignupLocators.continueBtn)
}

func (r *Runner) submitPhoneNumber(ctx context.Context, client *automation.Client, phoneNumber string) error {
	loc := defaultSignupLocators
	if err := r.setField(ctx, client, loc.phoneField, phoneNumber); err != nil {
		return fmt.Errorf("fill phone number: %w", err)
	}
	return r.clickButton(ctx, client, loc.continueBtn)
}

func (r *Runner) submitSMSCode(ctx context.Context, client *automation.Client, code string) error {
	loc := defaultSignupLocators
	if err := r.setField(ctx, client, loc.smsCodeField, code); err != nil {
		return fmt.Errorf("fill sms code: %w", err)
	}
	return r.clickButton(ctx, client, loc.continueBtn)
}

func (r *Runner) setPasswordAndUsername(ctx context.Context, client *automation.Client, password, username string) error {
	loc := defaultSignupLocators
	if err := r.setField(ctx, client, loc.passwordField, password); err != nil {
		return fmt.Errorf("fill password: %w", err)
	}
	if err := r.setField(ctx, client, loc.usernameField, username); err != nil {
		return fmt.Errorf("confirm username: %w", err)
	}
	return r.clickButton(ctx, client, loc.continueBtn)
}

func (r *Runner) skipOnboarding(ctx context.Context, client *automation.Client) error {
	return r.clickButton(ctx, client, defaultSignupLocators.skipBtn)
}

func (r *Runner) setField(ctx context.Context, client *automation.Client, accessibilityID, value string) error {
	el, err := client.FindElement(ctx, automation.StrategyAccessibilityID, accessibilityID)
	if err != nil {
		return err
	}
	return client.SetValue(ctx, el, value)
}

func (r *Runner) clickButton(ctx context.Context, client *automation.Client, accessibilityID string) error {
	el, err := client.FindElement(ctx, automation.StrategyAccessibilityID, accessibilityID)
	if err != nil {
		return err
	}
	return client.Click(ctx, el)
}
