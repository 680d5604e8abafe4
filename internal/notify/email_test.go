package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/practice-records/pkg/logging"
)

func digestMessage(to ...string) Message {
	return Message{
		To:       to,
		Subject:  "Daily summary 2024-03-01: 2 visits, 150.50",
		Text:     "text",
		HTML:     "<p>html</p>",
		Category: CategoryDigest,
	}
}

func TestMessageRecipientsTrimsAndDedupes(t *testing.T) {
	msg := Message{To: []string{" dr@example.com", "", "DR@example.com", "office@example.com "}}
	assert.Equal(t, []string{"dr@example.com", "office@example.com"}, msg.recipients())
}

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	assert.Nil(t, NewSendGridSender(SendGridConfig{FromEmail: "test@example.com"}, nil))
}

func TestNewSendGridSender_FromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "test@example.com"}, nil)
	require.NotNil(t, sender)
	assert.Equal(t, "Practice Records", sender.fromName)

	sender = NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "test@example.com", FromName: "Dr. Ade"}, nil)
	require.NotNil(t, sender)
	assert.Equal(t, "Dr. Ade", sender.fromName)
}

type fakeSendGrid struct {
	mail   *mail.SGMailV3
	status int
	err    error
}

func (f *fakeSendGrid) SendWithContext(_ context.Context, m *mail.SGMailV3) (*rest.Response, error) {
	f.mail = m
	if f.err != nil {
		return nil, f.err
	}
	return &rest.Response{StatusCode: f.status, Body: "{}"}, nil
}

func TestSendGridSender_OnePersonalizationPerRecipient(t *testing.T) {
	client := &fakeSendGrid{status: 202}
	sender := newSendGridSender(client, SendGridConfig{FromEmail: "clinic@example.com"}, logging.New("error"))

	err := sender.Send(context.Background(), digestMessage("dr@example.com", "office@example.com", "dr@example.com"))
	require.NoError(t, err)

	m := client.mail
	require.NotNil(t, m)
	assert.Equal(t, "clinic@example.com", m.From.Address)
	assert.Equal(t, "Practice Records", m.From.Name)
	require.Len(t, m.Personalizations, 2)
	assert.Equal(t, "dr@example.com", m.Personalizations[0].To[0].Address)
	assert.Equal(t, "office@example.com", m.Personalizations[1].To[0].Address)
	require.Len(t, m.Content, 2)
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Equal(t, "text/html", m.Content[1].Type)
	assert.Equal(t, []string{CategoryDigest}, m.Categories)
}

func TestSendGridSender_Errors(t *testing.T) {
	ctx := context.Background()

	var unset *SendGridSender
	assert.Error(t, unset.Send(ctx, digestMessage("dr@example.com")))

	sender := newSendGridSender(&fakeSendGrid{status: 202}, SendGridConfig{}, nil)
	assert.ErrorIs(t, sender.Send(ctx, digestMessage(" ")), errNoAddress)

	sender = newSendGridSender(&fakeSendGrid{status: 401}, SendGridConfig{}, nil)
	assert.EqualError(t, sender.Send(ctx, digestMessage("dr@example.com")), "notify: sendgrid returned status 401")

	boom := errors.New("dial tcp: timeout")
	sender = newSendGridSender(&fakeSendGrid{err: boom}, SendGridConfig{}, nil)
	assert.ErrorIs(t, sender.Send(ctx, digestMessage("dr@example.com")), boom)
}

func TestStubEmailSender_KeepsMessages(t *testing.T) {
	sender := NewStubEmailSender(nil)
	require.NoError(t, sender.Send(context.Background(), digestMessage("dr@example.com", "")))
	assert.ErrorIs(t, sender.Send(context.Background(), Message{Subject: "nobody"}), errNoAddress)

	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"dr@example.com"}, sent[0].To)
}

type fakeSES struct {
	inputs []*sesv2.SendEmailInput
	failTo string
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.inputs = append(f.inputs, in)
	if in.Destination.ToAddresses[0] == f.failTo {
		return nil, errors.New("throttled")
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestNewSESSender_NilClient(t *testing.T) {
	assert.Nil(t, NewSESSender(nil, SESConfig{FromEmail: "a@example.com"}, nil))
}

func TestSESSender_SendBuildsMessagePerRecipient(t *testing.T) {
	client := &fakeSES{}
	sender := NewSESSender(client, SESConfig{FromEmail: "clinic@example.com"}, nil)

	require.NoError(t, sender.Send(context.Background(), digestMessage("dr@example.com", "office@example.com")))
	require.Len(t, client.inputs, 2)

	first := client.inputs[0]
	assert.Equal(t, "Practice Records <clinic@example.com>", aws.ToString(first.FromEmailAddress))
	assert.Equal(t, []string{"dr@example.com"}, first.Destination.ToAddresses)
	assert.Equal(t, "text", aws.ToString(first.Content.Simple.Body.Text.Data))
	assert.Equal(t, "<p>html</p>", aws.ToString(first.Content.Simple.Body.Html.Data))
	require.Len(t, first.EmailTags, 1)
	assert.Equal(t, CategoryDigest, aws.ToString(first.EmailTags[0].Value))
	assert.Equal(t, []string{"office@example.com"}, client.inputs[1].Destination.ToAddresses)
}

func TestSESSender_PartialFailureStillDeliversRest(t *testing.T) {
	client := &fakeSES{failTo: "bad@example.com"}
	sender := NewSESSender(client, SESConfig{FromEmail: "a@example.com"}, logging.New("error"))

	err := sender.Send(context.Background(), digestMessage("bad@example.com", "dr@example.com"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad@example.com")
	assert.Len(t, client.inputs, 2)
}
