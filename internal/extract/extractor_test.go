package extract

import (
	"context"
	"reflect"
	"testing"

	"github.com/rawblock/upi-fraud-engine/internal/llm"
	"github.com/rawblock/upi-fraud-engine/pkg/models"
)

func TestExtract_EmptyMessage(t *testing.T) {
	e := New(nil)
	if _, err := e.Extract(context.Background(), "   \n\t "); err != ErrEmptyMessage {
		t.Fatalf("Expected ErrEmptyMessage for blank input, got %v", err)
	}
}

func TestExtractUPIIDs(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected []string
	}{
		{
			"Known provider",
			"Send to amit@oksbi today",
			[]string{"amit@oksbi"},
		},
		{
			"Unknown short provider accepted",
			"Pay shop@qxz now",
			[]string{"shop@qxz"},
		},
		{
			"Email domain rejected",
			"Contact me at someone@gmail.com",
			nil,
		},
		{
			"Deduplicated and lower-cased",
			"Amit@YBL or amit@ybl, your choice",
			[]string{"amit@ybl"},
		},
		{
			"Numeric local part",
			"Refund via 9876543210@ybl",
			[]string{"9876543210@ybl"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractUPIIDs(tt.text)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("extractUPIIDs(%q) = %v, want %v", tt.text, got, tt.expected)
			}
		})
	}
}

func TestExtractPhones_Normalization(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected []string
	}{
		{"Bare 10 digits", "Call 9876543210 now", []string{"+919876543210"}},
		{"Plus 91 prefix", "WhatsApp +91 9876543210", []string{"+919876543210"}},
		{"91 prefix without plus", "Number is 919876543210", []string{"+919876543210"}},
		{"Leading zero", "Dial 09876543210", []string{"+919876543210"}},
		{"Starts below 6 rejected", "Ref 5876543210", nil},
		{"Part of longer digit run rejected", "Acct 98765432101234", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractPhones(tt.text, nil)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("extractPhones(%q) = %v, want %v", tt.text, got, tt.expected)
			}
		})
	}
}

func TestExtractPhones_UPILocalPartIsNotAPhone(t *testing.T) {
	phones := extractPhones("Send money to 9876543210@ybl", nil)
	if len(phones) != 0 {
		t.Fatalf("UPI local part leaked into phones: %v", phones)
	}
}

func TestExtract_BankAccountSliceIsNotAPhone(t *testing.T) {
	e := New(nil)
	result, err := e.Extract(context.Background(), "Deposit to account no: 987654321098 immediately")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.BankAccounts) != 1 || result.BankAccounts[0] != "987654321098" {
		t.Fatalf("Expected one bank account, got %v", result.BankAccounts)
	}
	if len(result.PhoneNumbers) != 0 {
		t.Fatalf("Bank account digits re-emitted as phone: %v", result.PhoneNumbers)
	}
}

func TestExtractAmount(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected float64
		found    bool
	}{
		{"Rs prefix", "Pay Rs 500 now", 500, true},
		{"Rupee symbol with commas", "Transfer ₹1,50,000 today", 150000, true},
		{"Suffix form", "500 rupees pending", 500, true},
		{"Context form", "please pay me 500 for the book", 500, true},
		{"Zero rejected", "Rs 0 due", 0, false},
		{"No amount", "hello there", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractAmount(tt.text)
			if tt.found {
				if got == nil {
					t.Fatalf("extractAmount(%q) = nil, want %v", tt.text, tt.expected)
				}
				if *got != tt.expected {
					t.Errorf("extractAmount(%q) = %v, want %v", tt.text, *got, tt.expected)
				}
			} else if got != nil {
				t.Errorf("extractAmount(%q) = %v, want nil", tt.text, *got)
			}
		})
	}
}

func TestExtractLinks(t *testing.T) {
	links := extractLinks("Verify at http://kyc-update-sbi.in/verify or search google.com")
	if len(links) != 1 || links[0] != "http://kyc-update-sbi.in/verify" {
		t.Fatalf("Expected only the suspicious link, got %v", links)
	}
}

func TestExtract_SafeP2PMessage(t *testing.T) {
	e := New(nil)
	result, err := e.Extract(context.Background(), "Hi Priya, sending Rs 500 for dinner. My UPI: amit@oksbi.")
	if err != nil {
		t.Fatal(err)
	}

	if result.SenderUPI != "amit@oksbi" {
		t.Errorf("Expected my-UPI handle as sender, got %q", result.SenderUPI)
	}
	if result.Amount == nil || *result.Amount != 500 {
		t.Errorf("Expected amount 500, got %v", result.Amount)
	}
	if len(result.FraudIndicators) != 0 {
		t.Errorf("Safe message produced fraud indicators: %v", result.FraudIndicators)
	}
	if result.ScamType != "" {
		t.Errorf("Safe message got scam type %q", result.ScamType)
	}
}

func TestExtract_ScamPressureMessage(t *testing.T) {
	e := New(nil)
	result, err := e.Extract(context.Background(),
		"URGENT: Your SBI account will be blocked! Complete KYC verification immediately. Call 9876543210.")
	if err != nil {
		t.Fatal(err)
	}

	if result.ScamType != "PHISHING" {
		t.Errorf("Expected PHISHING scam type, got %q", result.ScamType)
	}
	if len(result.PhoneNumbers) != 1 || result.PhoneNumbers[0] != "+919876543210" {
		t.Errorf("Expected normalized callback number, got %v", result.PhoneNumbers)
	}
	if result.Source != models.SourceSMS {
		t.Errorf("Expected SMS source, got %v", result.Source)
	}
}

func TestExtract_QRPayloadSource(t *testing.T) {
	e := New(nil)
	result, err := e.Extract(context.Background(), "upi://pay?pa=refund-support@ybl&am=9999")
	if err != nil {
		t.Fatal(err)
	}
	if result.Source != models.SourceQRScan {
		t.Errorf("Expected QR_SCAN source for upi:// payload, got %v", result.Source)
	}
}

func TestExtract_Deterministic(t *testing.T) {
	e := New(nil)
	text := "Pay Rs 2,000 to winner@paytm or call 9876543210. Claim at http://prize-claim.xyz"

	first, err := e.Extract(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := e.Extract(context.Background(), text)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("Extraction is not deterministic: run %d differs", i)
		}
	}
}

type fakeAIExtractor struct {
	result *llm.IdentifierExtraction
	err    error
}

func (f *fakeAIExtractor) ExtractIdentifiers(_ context.Context, _ string) (*llm.IdentifierExtraction, error) {
	return f.result, f.err
}

func TestExtract_MergesAIResult(t *testing.T) {
	amount := 1200.0
	e := New(&fakeAIExtractor{result: &llm.IdentifierExtraction{
		ReceiverUPI: "Scammer@YBL",
		Amount:      &amount,
		UPIIDs:      []string{"scammer@ybl"},
		Links:       []string{"http://fake-bank.top"},
	}})

	result, err := e.Extract(context.Background(), "send money fast")
	if err != nil {
		t.Fatal(err)
	}
	if !result.AIExtracted {
		t.Error("Expected AIExtracted to be set after a merge")
	}
	if result.ReceiverUPI != "scammer@ybl" {
		t.Errorf("Expected LLM receiver to win, got %q", result.ReceiverUPI)
	}
	if result.Amount == nil || *result.Amount != 1200 {
		t.Errorf("Expected LLM amount 1200, got %v", result.Amount)
	}
	if len(result.Links) != 1 {
		t.Errorf("Expected LLM link union, got %v", result.Links)
	}
}

func TestExtract_AIFailureDegradesToRules(t *testing.T) {
	e := New(&fakeAIExtractor{err: context.DeadlineExceeded})
	result, err := e.Extract(context.Background(), "Pay Rs 500 to amit@oksbi")
	if err != nil {
		t.Fatal(err)
	}
	if result.AIExtracted {
		t.Error("AIExtracted should stay false when the LLM fails")
	}
	if result.Amount == nil || *result.Amount != 500 {
		t.Errorf("Rule extraction lost the amount: %v", result.Amount)
	}
}
