package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxzi/clientdesk/internal/config"
)

func TestResendSend(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/emails"))
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"email-1"}`))
	}))
	defer srv.Close()

	s, err := NewResend(config.ResendConfig{APIKey: "re_test", BaseURL: srv.URL}, "hello@studio.test", "Studio")
	require.NoError(t, err)

	msg := validMessage()
	msg.Attachments = []Attachment{{Filename: "a.txt", Content: []byte("hi")}}
	require.NoError(t, s.Send(context.Background(), msg))

	assert.Equal(t, `"Sue" <hello@studio.test>`, body["from"])
	assert.Equal(t, []any{`"Jane Doe" <jane@client.test>`}, body["to"])
	assert.Equal(t, "Welcome aboard", body["subject"])
	assert.Equal(t, "<p>Hi Jane</p>", body["html"])
	assert.Equal(t, "sue@freelancer.test", body["reply_to"])
	assert.Len(t, body["attachments"], 1)
}

func TestResendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"invalid from"}`))
	}))
	defer srv.Close()

	s, err := NewResend(config.ResendConfig{APIKey: "re_test", BaseURL: srv.URL}, "hello@studio.test", "")
	require.NoError(t, err)

	err = s.Send(context.Background(), validMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resend")
}

func TestMailgunSend(t *testing.T) {
	form := map[string]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mg.studio.test/messages", r.URL.Path)
		for _, key := range []string{"from", "to", "subject", "text", "html", "h:Reply-To"} {
			form[key] = r.FormValue(key)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"Queued. Thank you.","id":"<1@mg.studio.test>"}`))
	}))
	defer srv.Close()

	s := NewMailgun(config.MailgunConfig{Domain: "mg.studio.test", APIKey: "key-test", BaseURL: srv.URL + "/v3"}, "hello@studio.test", "Studio")
	require.NoError(t, s.Send(context.Background(), validMessage()))

	assert.Equal(t, `"Sue" <hello@studio.test>`, form["from"])
	assert.Equal(t, `"Jane Doe" <jane@client.test>`, form["to"])
	assert.Equal(t, "Welcome aboard", form["subject"])
	assert.Equal(t, "Hi Jane", form["text"])
	assert.Equal(t, "<p>Hi Jane</p>", form["html"])
	assert.Equal(t, "sue@freelancer.test", form["h:Reply-To"])
}

func TestMailgunError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("Forbidden"))
	}))
	defer srv.Close()

	s := NewMailgun(config.MailgunConfig{Domain: "mg.studio.test", APIKey: "bad", BaseURL: srv.URL + "/v3"}, "hello@studio.test", "")
	assert.Error(t, s.Send(context.Background(), validMessage()))
}

const sesResponse = `<SendEmailResponse xmlns="http://ses.amazonaws.com/doc/2010-12-01/">
  <SendEmailResult><MessageId>msg-1</MessageId></SendEmailResult>
  <ResponseMetadata><RequestId>req-1</RequestId></ResponseMetadata>
</SendEmailResponse>`

func TestSESSend(t *testing.T) {
	form := map[string]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		for key := range r.PostForm {
			form[key] = r.PostForm.Get(key)
		}
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(sesResponse))
	}))
	defer srv.Close()

	s, err := NewSES(config.SESConfig{
		Region:           "eu-west-1",
		AccessKeyID:      "AKIDTEST",
		SecretAccessKey:  "secret",
		ConfigurationSet: "clientdesk",
		Endpoint:         srv.URL,
	}, "hello@studio.test", "Studio")
	require.NoError(t, err)

	require.NoError(t, s.Send(context.Background(), validMessage()))

	assert.Equal(t, "SendEmail", form["Action"])
	assert.Equal(t, `"Sue" <hello@studio.test>`, form["Source"])
	assert.Equal(t, `"Jane Doe" <jane@client.test>`, form["Destination.ToAddresses.member.1"])
	assert.Equal(t, "sue@freelancer.test", form["ReplyToAddresses.member.1"])
	assert.Equal(t, "Welcome aboard", form["Message.Subject.Data"])
	assert.Equal(t, "<p>Hi Jane</p>", form["Message.Body.Html.Data"])
	assert.Equal(t, "clientdesk", form["ConfigurationSetName"])
}
