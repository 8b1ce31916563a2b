package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/reliefops/fieldsync/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBaseURL = "https://surveys.example.org"

func newTestClient(t *testing.T) *Client {
	t.Helper()

	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)

	userSession := session.New()
	userSession.SetToken("test-token")

	client, err := NewClient(ClientConfig{
		BaseURL: testBaseURL + "/",
		Session: userSession,
	})
	require.NoError(t, err)
	return client
}

func TestCreateSurveySendsSnakeCaseWireFields(t *testing.T) {
	client := newTestClient(t)

	var captured map[string]any
	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/v1/surveys",
		func(request *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer test-token", request.Header.Get("Authorization"))
			assert.Equal(t, "application/json", request.Header.Get("Content-Type"))

			body, err := io.ReadAll(request.Body)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(body, &captured))

			return httpmock.NewJsonResponse(http.StatusCreated,
				map[string]any{"data": map[string]any{"id": 500}})
		})

	payload := `{
		"consentAgreed": true,
		"respondentName": "Ana Cruz",
		"relationshipSpecify": "",
		"householdIdNo": "HH-001",
		"province": "Zambales",
		"amountReceived": 10000,
		"expenseFood": 2500.5,
		"livelihoodTypes": []
	}`

	serverID, err := client.CreateSurvey(context.Background(), "client-uuid-1", payload)
	require.NoError(t, err)
	assert.Equal(t, int64(500), serverID)

	assert.Equal(t, "client-uuid-1", captured["client_uuid"])
	assert.Equal(t, true, captured["consent_agreed"])
	assert.Equal(t, "Ana Cruz", captured["respondent_name"])
	assert.Equal(t, "Zambales", captured["province"])
	assert.Equal(t, 10000.0, captured["amount_received"])
	assert.Equal(t, 2500.5, captured["expense_food"])

	// Empty optional free-text fields and empty lists travel as null.
	assert.Contains(t, captured, "relationship_specify")
	assert.Nil(t, captured["relationship_specify"])
	assert.Nil(t, captured["livelihood_types"])
	assert.Equal(t, "HH-001", captured["household_id_no"])

	// Internal camelCase names never leak onto the wire.
	assert.NotContains(t, captured, "respondentName")
	assert.NotContains(t, captured, "consentAgreed")
}

func TestCreateSurveyRejectsMalformedPayload(t *testing.T) {
	client := newTestClient(t)

	_, err := client.CreateSurvey(context.Background(), "client-uuid-1", "{not json")
	require.Error(t, err)
	assert.Zero(t, httpmock.GetTotalCallCount())
}

func TestCreateSurveyReturnsRequestErrorWithServerMessage(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/v1/surveys",
		httpmock.NewStringResponder(http.StatusUnprocessableEntity,
			`{"message":"The client uuid has already been taken."}`))

	_, err := client.CreateSurvey(context.Background(), "client-uuid-1", "{}")
	require.Error(t, err)

	var requestError *RequestError
	require.True(t, errors.As(err, &requestError))
	assert.Equal(t, http.StatusUnprocessableEntity, requestError.StatusCode)
	assert.Equal(t, "The client uuid has already been taken.", requestError.Message)
}

func TestUploadAttachmentSendsMultipartForm(t *testing.T) {
	client := newTestClient(t)

	pngData := append([]byte("\x89PNG\r\n\x1a\n"), []byte("fake-image")...)
	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/v1/surveys/500/uploads",
		func(request *http.Request) (*http.Response, error) {
			require.NoError(t, request.ParseMultipartForm(1<<20))
			assert.Equal(t, "respondent_signature", request.FormValue("type"))

			file, header, err := request.FormFile("file")
			require.NoError(t, err)
			defer file.Close()
			assert.Equal(t, "respondent_signature.png", header.Filename)

			data, err := io.ReadAll(file)
			require.NoError(t, err)
			assert.Equal(t, pngData, data)

			return httpmock.NewStringResponse(http.StatusCreated, `{"data":{"ok":true}}`), nil
		})

	err := client.UploadAttachment(context.Background(), 500, "respondent_signature", pngData)
	require.NoError(t, err)
}

func TestListSurveysParsesPaginationEnvelope(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/v1/surveys?page=1",
		httpmock.NewStringResponder(http.StatusOK, `{
			"data": [
				{
					"id": 41,
					"client_uuid": "c-41",
					"created_at": "2026-07-01T08:00:00Z",
					"updated_at": "2026-07-01T09:30:00Z",
					"respondent_name": "Ana Cruz",
					"province": "Zambales",
					"relationship_specify": null,
					"amount_received": 10000
				}
			],
			"meta": {"current_page": 1, "last_page": 3}
		}`))

	page, err := client.ListSurveys(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	require.Len(t, page.Surveys, 1)

	record := page.Surveys[0]
	assert.Equal(t, int64(41), record.ServerID)
	assert.Equal(t, "c-41", record.ClientUUID)
	assert.Equal(t, "2026-07-01T08:00:00Z", record.CreatedAt)

	// The pulled payload is re-encoded with internal camelCase names.
	var form FormData
	require.NoError(t, json.Unmarshal([]byte(record.PayloadJSON), &form))
	assert.Equal(t, "Ana Cruz", form.RespondentName)
	assert.Equal(t, "Zambales", form.Province)
	assert.Equal(t, "", form.RelationshipSpecify)
	assert.Equal(t, 10000.0, form.AmountReceived)
}

func TestListSurveysLastPageHasNoMore(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/v1/surveys?page=3",
		httpmock.NewStringResponder(http.StatusOK, `{
			"data": [{"id": 99, "client_uuid": "c-99", "created_at": "", "updated_at": ""}],
			"meta": {"current_page": 3, "last_page": 3}
		}`))

	page, err := client.ListSurveys(context.Background(), 3)
	require.NoError(t, err)
	assert.False(t, page.HasMore)
	assert.Len(t, page.Surveys, 1)
}

func TestAddressLookupsEscapeQueryValues(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder(http.MethodGet,
		testBaseURL+"/v1/addresses/municipalities?province=Agusan+del+Sur&district=1st+District",
		httpmock.NewStringResponder(http.StatusOK, `["Bayugan","Prosperidad"]`))

	municipalities, err := client.Municipalities(context.Background(), "Agusan del Sur", "1st District")
	require.NoError(t, err)
	assert.Equal(t, []string{"Bayugan", "Prosperidad"}, municipalities)
}

func TestIncidentsUnwrapsDataEnvelope(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/v1/incidents",
		httpmock.NewStringResponder(http.StatusOK, `{
			"data": [
				{"id": 7, "name": "Typhoon Egay", "type": "typhoon",
				 "starts_at": "2026-07-20", "ends_at": null,
				 "is_active": true, "description": null}
			]
		}`))

	incidents, err := client.Incidents(context.Background())
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.Equal(t, int64(7), incidents[0].ID)
	assert.Equal(t, "Typhoon Egay", incidents[0].Name)
	require.NotNil(t, incidents[0].StartsAt)
	assert.Equal(t, "2026-07-20", *incidents[0].StartsAt)
	assert.Nil(t, incidents[0].EndsAt)
	assert.Equal(t, "", incidents[0].Description)
}

func TestDoReplaysQueuedRequestVerbatim(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/v1/feedback",
		func(request *http.Request) (*http.Response, error) {
			assert.Equal(t, "high", request.Header.Get("X-Priority"))
			body, err := io.ReadAll(request.Body)
			require.NoError(t, err)
			assert.JSONEq(t, `{"note":"queued offline"}`, string(body))
			return httpmock.NewStringResponse(http.StatusOK, `{}`), nil
		})

	err := client.Do(context.Background(), http.MethodPost, "/v1/feedback",
		[]byte(`{"note":"queued offline"}`), map[string]string{"X-Priority": "high"})
	require.NoError(t, err)
}

func TestDoSurfacesServerRejection(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder(http.MethodDelete, testBaseURL+"/v1/feedback/9",
		httpmock.NewStringResponder(http.StatusForbidden, `{"message":"forbidden"}`))

	err := client.Do(context.Background(), http.MethodDelete, "/v1/feedback/9", nil, nil)
	var requestError *RequestError
	require.True(t, errors.As(err, &requestError))
	assert.Equal(t, http.StatusForbidden, requestError.StatusCode)
}
