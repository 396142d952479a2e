package handler

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"press-pass-server/internal/domain/conversion"
	"press-pass-server/internal/domain/shadowstat"
)

func TestStatsHandler_GetShadowStats(t *testing.T) {
	tests := []struct {
		name           string
		tokenUserID    string
		setupMock      func(*handlerEnv)
		expectedStatus int
		checkBody      func(*testing.T, ShadowStatsResponse)
	}{
		{
			name:        "正常系: 当日統計を取得",
			tokenUserID: "user123",
			setupMock: func(env *handlerEnv) {
				lastReset := time.Date(2026, 3, 14, 0, 0, 5, 0, time.UTC)
				stat := shadowstat.MustNewShadowStat("user123", 80, 5, 3, 2, 4, &lastReset, 9)
				env.statRepo.On("FindByUserID", mock.Anything, (*sql.Tx)(nil), "user123").Return(stat, nil)
			},
			expectedStatus: http.StatusOK,
			checkBody: func(t *testing.T, body ShadowStatsResponse) {
				assert.Equal(t, int64(80), body.XPEarnedToday)
				assert.Equal(t, 5, body.TradesExecutedToday)
				assert.Equal(t, 3, body.WinsToday)
				assert.Equal(t, 2, body.LossesToday)
				assert.Equal(t, 4, body.TotalResets)
				require.NotNil(t, body.LastResetAt)
			},
		},
		{
			name:        "正常系: 統計未作成ならゼロで返す",
			tokenUserID: "rookie",
			setupMock: func(env *handlerEnv) {
				env.statRepo.On("FindByUserID", mock.Anything, (*sql.Tx)(nil), "rookie").
					Return(nil, shadowstat.ErrShadowStatNotFound)
			},
			expectedStatus: http.StatusOK,
			checkBody: func(t *testing.T, body ShadowStatsResponse) {
				assert.Equal(t, int64(0), body.XPEarnedToday)
				assert.Nil(t, body.LastResetAt)
			},
		},
		{
			name:           "異常系: user_idがトークンにない",
			tokenUserID:    "",
			setupMock:      func(env *handlerEnv) {},
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newHandlerEnv(t)
			tt.setupMock(env)
			handler := NewStatsHandler(env.shadowStatService, env.conversionService)

			req := httptest.NewRequest(http.MethodGet, "/me/stats", nil)
			rec := httptest.NewRecorder()
			c := env.echo.NewContext(req, rec)
			if tt.tokenUserID != "" {
				c.Set("user_id", tt.tokenUserID)
			}

			env.invoke(c, handler.GetShadowStats)
			assert.Equal(t, tt.expectedStatus, rec.Code)

			if tt.checkBody != nil {
				var body ShadowStatsResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				tt.checkBody(t, body)
			}
			env.statRepo.AssertExpectations(t)
		})
	}
}

func TestStatsHandler_GetConversion(t *testing.T) {
	startDate := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("正常系: 未確定の記録を取得", func(t *testing.T) {
		env := newHandlerEnv(t)
		record := conversion.MustNewConversionRecord("user123", startDate, "landing_page", "spring_2026")
		env.conversionRepo.On("FindByUserID", mock.Anything, (*sql.Tx)(nil), "user123").Return(record, nil)
		handler := NewStatsHandler(env.shadowStatService, env.conversionService)

		req := httptest.NewRequest(http.MethodGet, "/me/conversion", nil)
		rec := httptest.NewRecorder()
		c := env.echo.NewContext(req, rec)
		c.Set("user_id", "user123")

		env.invoke(c, handler.GetConversion)
		assert.Equal(t, http.StatusOK, rec.Code)

		var body ConversionRecordResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "user123", body.UserID)
		assert.False(t, body.EnlistedAfter)
		assert.Nil(t, body.EnlistedTier)
		assert.Equal(t, "landing_page", body.Source)
		env.conversionRepo.AssertExpectations(t)
	})

	t.Run("正常系: 転換済みの記録を取得", func(t *testing.T) {
		env := newHandlerEnv(t)
		record := conversion.MustNewConversionRecord("user123", startDate, "", "")
		require.NoError(t, record.Finalize(conversion.TierFang, 120, startDate.Add(48*time.Hour)))
		env.conversionRepo.On("FindByUserID", mock.Anything, (*sql.Tx)(nil), "user123").Return(record, nil)
		handler := NewStatsHandler(env.shadowStatService, env.conversionService)

		req := httptest.NewRequest(http.MethodGet, "/me/conversion", nil)
		rec := httptest.NewRecorder()
		c := env.echo.NewContext(req, rec)
		c.Set("user_id", "user123")

		env.invoke(c, handler.GetConversion)
		assert.Equal(t, http.StatusOK, rec.Code)

		var body ConversionRecordResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body.EnlistedAfter)
		require.NotNil(t, body.EnlistedTier)
		assert.Equal(t, "FANG", *body.EnlistedTier)
		require.NotNil(t, body.XPPreserved)
		assert.Equal(t, int64(120), *body.XPPreserved)
		env.conversionRepo.AssertExpectations(t)
	})

	t.Run("異常系: 記録がなければ404", func(t *testing.T) {
		env := newHandlerEnv(t)
		env.conversionRepo.On("FindByUserID", mock.Anything, (*sql.Tx)(nil), "stranger").
			Return(nil, conversion.ErrRecordNotFound)
		handler := NewStatsHandler(env.shadowStatService, env.conversionService)

		req := httptest.NewRequest(http.MethodGet, "/me/conversion", nil)
		rec := httptest.NewRecorder()
		c := env.echo.NewContext(req, rec)
		c.Set("user_id", "stranger")

		env.invoke(c, handler.GetConversion)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		env.conversionRepo.AssertExpectations(t)
	})

	t.Run("異常系: user_idがトークンにない", func(t *testing.T) {
		env := newHandlerEnv(t)
		handler := NewStatsHandler(env.shadowStatService, env.conversionService)

		req := httptest.NewRequest(http.MethodGet, "/me/conversion", nil)
		rec := httptest.NewRecorder()
		c := env.echo.NewContext(req, rec)

		env.invoke(c, handler.GetConversion)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestStatsHandler_GetShadowStatsAdmin(t *testing.T) {
	t.Run("正常系: パスパラメータのユーザーで取得", func(t *testing.T) {
		env := newHandlerEnv(t)
		stat := shadowstat.MustNewShadowStat("user456", 30, 1, 0, 1, 0, nil, 1)
		env.statRepo.On("FindByUserID", mock.Anything, (*sql.Tx)(nil), "user456").Return(stat, nil)
		handler := NewStatsHandler(env.shadowStatService, env.conversionService)

		req := httptest.NewRequest(http.MethodGet, "/admin/users/user456/stats", nil)
		rec := httptest.NewRecorder()
		c := env.echo.NewContext(req, rec)
		c.SetParamNames("user_id")
		c.SetParamValues("user456")

		env.invoke(c, handler.GetShadowStatsAdmin)
		assert.Equal(t, http.StatusOK, rec.Code)

		var body ShadowStatsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "user456", body.UserID)
		assert.Equal(t, int64(30), body.XPEarnedToday)
		env.statRepo.AssertExpectations(t)
	})
}
