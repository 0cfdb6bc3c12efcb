package validation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"warden/internal/audit"
	"warden/internal/validation"
	"warden/internal/validation/mocks"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/testutil"
)

func TestValidateKinds(t *testing.T) {
	v := validation.New()
	ctx := context.Background()

	tests := []struct {
		name    string
		field   validation.Field
		want    string
		wantErr string
	}{
		{name: "name collapses whitespace", field: validation.Field{Name: "n", Kind: validation.KindName, Raw: "  Mod \t  Team\n"}, want: "Mod Team"},
		{name: "name applies NFKC", field: validation.Field{Name: "n", Kind: validation.KindName, Raw: "ｓｔａｆｆ"}, want: "staff"},
		{name: "name keeps emoji", field: validation.Field{Name: "n", Kind: validation.KindName, Raw: "raid \U0001F6E1\uFE0F"}, want: "raid \U0001F6E1\uFE0F"},
		{name: "name rejects control", field: validation.Field{Name: "n", Kind: validation.KindName, Raw: "bad\x07name"}, wantErr: "control character"},
		{name: "name rejects bidi override", field: validation.Field{Name: "n", Kind: validation.KindName, Raw: "abc\u202edef"}, wantErr: "format character"},
		{name: "name rejects mention syntax", field: validation.Field{Name: "n", Kind: validation.KindName, Raw: "@everyone"}, wantErr: "not allowed"},
		{name: "name rejects empty", field: validation.Field{Name: "n", Kind: validation.KindName, Raw: "   "}, wantErr: "length 0"},
		{
			name:  "name counts graphemes not bytes",
			field: validation.Field{Name: "n", Kind: validation.KindName, Raw: "\U0001F468\u200d\U0001F469\u200d\U0001F467e\u0301", Constraints: validation.Constraints{MaxLength: 2}},
			want:  "\U0001F468\u200d\U0001F469\u200d\U0001F467\u00e9",
		},
		{
			name:    "name over max length",
			field:   validation.Field{Name: "n", Kind: validation.KindName, Raw: "abcdef", Constraints: validation.Constraints{MaxLength: 5}},
			wantErr: "length 6 outside [1, 5]",
		},
		{name: "channel mention", field: validation.Field{Name: "c", Kind: validation.KindChannel, Raw: "<#123456789012345678>"}, want: "123456789012345678"},
		{name: "channel raw id", field: validation.Field{Name: "c", Kind: validation.KindChannel, Raw: " 123456789012345678 "}, want: "123456789012345678"},
		{name: "channel rejects role mention", field: validation.Field{Name: "c", Kind: validation.KindChannel, Raw: "<@&123456789012345678>"}, wantErr: "not a channel"},
		{name: "role mention", field: validation.Field{Name: "r", Kind: validation.KindRole, Raw: "<@&223456789012345678>"}, want: "223456789012345678"},
		{name: "user nick mention", field: validation.Field{Name: "u", Kind: validation.KindUser, Raw: "<@!323456789012345678>"}, want: "323456789012345678"},
		{name: "user rejects short id", field: validation.Field{Name: "u", Kind: validation.KindUser, Raw: "12345"}, wantErr: "not a user"},
		{
			name:  "int in range",
			field: validation.Field{Name: "i", Kind: validation.KindInt, Raw: " 42 ", Constraints: validation.Constraints{Min: 1, Max: 100}},
			want:  "42",
		},
		{
			name:    "int out of range",
			field:   validation.Field{Name: "i", Kind: validation.KindInt, Raw: "101", Constraints: validation.Constraints{Min: 1, Max: 100}},
			wantErr: "outside",
		},
		{name: "int garbage", field: validation.Field{Name: "i", Kind: validation.KindInt, Raw: "4two"}, wantErr: "not an integer"},
		{
			name:  "duration in range",
			field: validation.Field{Name: "d", Kind: validation.KindDuration, Raw: "90s", Constraints: validation.Constraints{MinDuration: time.Second, MaxDuration: time.Hour}},
			want:  "1m30s",
		},
		{name: "duration negative", field: validation.Field{Name: "d", Kind: validation.KindDuration, Raw: "-5m"}, wantErr: "negative"},
		{
			name:  "enum case-insensitive",
			field: validation.Field{Name: "e", Kind: validation.KindEnum, Raw: "REJECT", Constraints: validation.Constraints{Choices: []string{"hold", "reject"}}},
			want:  "reject",
		},
		{
			name:    "enum unknown",
			field:   validation.Field{Name: "e", Kind: validation.KindEnum, Raw: "ban", Constraints: validation.Constraints{Choices: []string{"hold", "reject"}}},
			wantErr: "must be one of hold, reject",
		},
		{name: "unknown kind", field: validation.Field{Name: "x", Kind: "color", Raw: "red"}, wantErr: "unknown kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Validate(ctx, tt.field)
			if tt.wantErr != "" {
				require.Error(t, err)
				var ve *validation.ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, tt.field.Name, ve.Field)
				assert.Contains(t, ve.Reason, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Text)
			assert.Equal(t, tt.field.Name, got.Field)
			assert.Equal(t, tt.field.Kind, got.Kind)
		})
	}
}

// =============================================================================
// Multi-field Validation Test Suite
// =============================================================================
// Justification for unit tests: the all-or-nothing contract and capability
// delegation are observable only through the collaborator mock.

type ValidateAllSuite struct {
	suite.Suite
	ctrl        *gomock.Controller
	permissions *mocks.MockPermissionLookup
	auditor     *testutil.RecordingAuditor
	validator   *validation.Validator
	ctx         context.Context
}

func TestValidateAllSuite(t *testing.T) {
	suite.Run(t, new(ValidateAllSuite))
}

func (s *ValidateAllSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.permissions = mocks.NewMockPermissionLookup(s.ctrl)
	s.auditor = &testutil.RecordingAuditor{}
	s.validator = validation.New(
		validation.WithPermissionLookup(s.permissions),
		validation.WithAuditRecorder(s.auditor),
	)
	s.ctx = context.Background()
}

func (s *ValidateAllSuite) request(fields ...validation.Field) validation.Request {
	return validation.Request{
		ActorID:    "mod-1",
		GuildID:    "guild-1",
		Capability: "manage_config",
		Fields:     fields,
	}
}

func (s *ValidateAllSuite) TestAllFieldsValid() {
	s.permissions.EXPECT().HasCapability(gomock.Any(), "mod-1", "guild-1", "manage_config").Return(true, nil)

	values, err := s.validator.ValidateAll(s.ctx, s.request(
		validation.Field{Name: "log_channel", Kind: validation.KindChannel, Raw: "<#123456789012345678>"},
		validation.Field{Name: "slowmode", Kind: validation.KindInt, Raw: "5", Constraints: validation.Constraints{Min: 0, Max: 21600}},
	))
	s.Require().NoError(err)
	s.Equal("123456789012345678", values["log_channel"].Text)
	s.Equal(int64(5), values["slowmode"].Int)
	s.Empty(s.auditor.Actions())
}

func (s *ValidateAllSuite) TestAnyFailureReturnsNoValues() {
	s.permissions.EXPECT().HasCapability(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)

	values, err := s.validator.ValidateAll(s.ctx, s.request(
		validation.Field{Name: "welcome", Kind: validation.KindName, Raw: "Welcome"},
		validation.Field{Name: "log_channel", Kind: validation.KindChannel, Raw: "general"},
		validation.Field{Name: "mode", Kind: validation.KindEnum, Raw: "loud", Constraints: validation.Constraints{Choices: []string{"quiet"}}},
	))
	s.Require().Error(err)
	s.Nil(values)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	fieldErrs := validation.FieldErrors(err)
	s.Require().Len(fieldErrs, 2)
	s.Equal("log_channel", fieldErrs[0].Field)
	s.Equal("mode", fieldErrs[1].Field)

	last, ok := s.auditor.Last()
	s.Require().True(ok)
	s.Equal(audit.ActionInputRejected, last.Action)
	s.Equal("fields=log_channel,mode", last.Detail)
}

func (s *ValidateAllSuite) TestDuplicateFieldRejected() {
	s.permissions.EXPECT().HasCapability(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)

	_, err := s.validator.ValidateAll(s.ctx, s.request(
		validation.Field{Name: "n", Kind: validation.KindName, Raw: "a"},
		validation.Field{Name: "n", Kind: validation.KindName, Raw: "b"},
	))
	s.Require().Error(err)
	s.Contains(err.Error(), "duplicate field")
}

func (s *ValidateAllSuite) TestCapabilityDenied() {
	s.permissions.EXPECT().HasCapability(gomock.Any(), "mod-1", "guild-1", "manage_config").Return(false, nil)

	values, err := s.validator.ValidateAll(s.ctx, s.request(
		validation.Field{Name: "n", Kind: validation.KindName, Raw: "fine"},
	))
	s.Require().Error(err)
	s.Nil(values)
	s.ErrorIs(err, validation.ErrCapabilityDenied)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	fieldErrs := validation.FieldErrors(err)
	s.Require().Len(fieldErrs, 1)
	s.Equal("capability", fieldErrs[0].Field)
	s.Equal([]audit.Action{audit.ActionCapabilityDenied}, s.auditor.Actions())
}

func (s *ValidateAllSuite) TestLookupFailureDenies() {
	s.permissions.EXPECT().HasCapability(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(false, errors.New("permission service down"))

	_, err := s.validator.ValidateAll(s.ctx, s.request())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func (s *ValidateAllSuite) TestNoCapabilitySkipsLookup() {
	req := s.request(validation.Field{Name: "n", Kind: validation.KindName, Raw: "ok"})
	req.Capability = ""
	values, err := s.validator.ValidateAll(s.ctx, req)
	s.Require().NoError(err)
	s.Equal("ok", values["n"].Text)
}

func TestAuthorizeWithoutLookup(t *testing.T) {
	err := validation.New().Authorize(context.Background(), "a", "g", "c")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}

func TestPermissionFunc(t *testing.T) {
	lookup := validation.PermissionFunc(func(_ context.Context, actorID, _, capability string) (bool, error) {
		return actorID == "owner" && capability == "lockdown", nil
	})
	v := validation.New(validation.WithPermissionLookup(lookup))
	assert.NoError(t, v.Authorize(context.Background(), "owner", "g", "lockdown"))
	assert.Error(t, v.Authorize(context.Background(), "guest", "g", "lockdown"))
}

func TestStaticGrants(t *testing.T) {
	grants := validation.StaticGrants{
		"owner":       {validation.AllCapabilities},
		"mod":         {"lockdown"},
		"guild-1/mod": {"manage_config"},
	}
	v := validation.New(validation.WithPermissionLookup(grants))
	ctx := context.Background()

	tests := []struct {
		name       string
		actor      string
		guild      string
		capability string
		allowed    bool
	}{
		{name: "wildcard grant", actor: "owner", guild: "guild-2", capability: "manage_config", allowed: true},
		{name: "global grant", actor: "mod", guild: "guild-2", capability: "lockdown", allowed: true},
		{name: "guild-scoped grant", actor: "mod", guild: "guild-1", capability: "manage_config", allowed: true},
		{name: "guild-scoped grant elsewhere", actor: "mod", guild: "guild-2", capability: "manage_config"},
		{name: "unknown actor", actor: "guest", guild: "guild-1", capability: "lockdown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Authorize(ctx, tt.actor, tt.guild, tt.capability)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
		})
	}
}
