package handler

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"press-pass-server/internal/domain/quota"
)

func TestSignupHandler_Admit(t *testing.T) {
	weekStart := quota.WeekStart(time.Now().UTC())

	t.Run("正常系: 枠を消費して許可", func(t *testing.T) {
		env := newHandlerEnv(t)
		env.dbMock.ExpectBegin()
		env.quotaRepo.On("EnsureWeek", mock.Anything, mock.Anything, weekStart).Return(nil)
		env.quotaRepo.On("IncrementIfBelowCap", mock.Anything, mock.Anything, weekStart, 200).Return(true, nil)
		env.quotaRepo.On("FindByWeekStart", mock.Anything, mock.Anything, weekStart).
			Return(quota.MustNewWeeklyQuota(weekStart, 42, false), nil)
		env.dbMock.ExpectCommit()
		handler := NewSignupHandler(env.quotaService)

		reqBody, _ := json.Marshal(AdmitRequest{UserID: "user123"})
		req := httptest.NewRequest(http.MethodPost, "/signup/admit", bytes.NewReader(reqBody))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := env.echo.NewContext(req, rec)

		env.invoke(c, handler.Admit)
		assert.Equal(t, http.StatusOK, rec.Code)

		var body AdmitResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body.Admitted)
		assert.Equal(t, 42, body.AccountsCreated)
		assert.Equal(t, 158, body.Remaining)
		env.quotaRepo.AssertExpectations(t)
		assert.NoError(t, env.dbMock.ExpectationsWereMet())
	})

	t.Run("異常系: 枠が尽きていれば429", func(t *testing.T) {
		env := newHandlerEnv(t)
		env.dbMock.ExpectBegin()
		env.quotaRepo.On("EnsureWeek", mock.Anything, mock.Anything, weekStart).Return(nil)
		env.quotaRepo.On("IncrementIfBelowCap", mock.Anything, mock.Anything, weekStart, 200).Return(false, nil)
		env.dbMock.ExpectRollback()
		env.quotaRepo.On("MarkLimitReached", mock.Anything, mock.Anything, weekStart).Return(nil)
		handler := NewSignupHandler(env.quotaService)

		reqBody, _ := json.Marshal(AdmitRequest{UserID: "user123"})
		req := httptest.NewRequest(http.MethodPost, "/signup/admit", bytes.NewReader(reqBody))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := env.echo.NewContext(req, rec)

		env.invoke(c, handler.Admit)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "quota_exceeded", body["error"])
		env.quotaRepo.AssertExpectations(t)
		assert.NoError(t, env.dbMock.ExpectationsWereMet())
	})

	t.Run("異常系: user_idがない", func(t *testing.T) {
		env := newHandlerEnv(t)
		handler := NewSignupHandler(env.quotaService)

		reqBody, _ := json.Marshal(AdmitRequest{})
		req := httptest.NewRequest(http.MethodPost, "/signup/admit", bytes.NewReader(reqBody))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := env.echo.NewContext(req, rec)

		env.invoke(c, handler.Admit)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSignupHandler_QuotaStatus(t *testing.T) {
	weekStart := quota.WeekStart(time.Now().UTC())

	t.Run("正常系: 今週の枠の状態を返す", func(t *testing.T) {
		env := newHandlerEnv(t)
		env.quotaRepo.On("FindByWeekStart", mock.Anything, (*sql.Tx)(nil), weekStart).
			Return(quota.MustNewWeeklyQuota(weekStart, 200, true), nil)
		handler := NewSignupHandler(env.quotaService)

		req := httptest.NewRequest(http.MethodGet, "/signup/quota", nil)
		rec := httptest.NewRecorder()
		c := env.echo.NewContext(req, rec)

		env.invoke(c, handler.QuotaStatus)
		assert.Equal(t, http.StatusOK, rec.Code)

		var body QuotaStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 200, body.AccountsCreated)
		assert.Equal(t, 200, body.Cap)
		assert.Equal(t, 0, body.Remaining)
		assert.True(t, body.LimitReached)
		env.quotaRepo.AssertExpectations(t)
	})

	t.Run("正常系: 記録がなければゼロ扱い", func(t *testing.T) {
		env := newHandlerEnv(t)
		env.quotaRepo.On("FindByWeekStart", mock.Anything, (*sql.Tx)(nil), weekStart).
			Return(nil, quota.ErrQuotaNotFound)
		handler := NewSignupHandler(env.quotaService)

		req := httptest.NewRequest(http.MethodGet, "/signup/quota", nil)
		rec := httptest.NewRecorder()
		c := env.echo.NewContext(req, rec)

		env.invoke(c, handler.QuotaStatus)
		assert.Equal(t, http.StatusOK, rec.Code)

		var body QuotaStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 0, body.AccountsCreated)
		assert.Equal(t, 200, body.Remaining)
		env.quotaRepo.AssertExpectations(t)
	})
}
