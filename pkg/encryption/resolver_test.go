package encryption

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	localFP  = "sha-256 AA:BB"
	remoteFP = "sha-256 CC:DD"
)

var (
	aes128 = CryptoSuite{Tag: 1, Suite: "AES_CM_128_HMAC_SHA1_80", KeyParams: "inline:local128"}
	aes32  = CryptoSuite{Tag: 2, Suite: "AES_CM_128_HMAC_SHA1_32", KeyParams: "inline:local32"}
	aes256 = CryptoSuite{Tag: 3, Suite: "AES_256_CM_HMAC_SHA1_80", KeyParams: "inline:local256"}
)

func TestProfileTable(t *testing.T) {
	tests := []struct {
		mode Mode
		avpf bool
		want Profile
	}{
		{None, false, "RTP/AVP"},
		{None, true, "RTP/AVPF"},
		{SdesSrtp, false, "RTP/SAVP"},
		{SdesSrtp, true, "RTP/SAVPF"},
		{ZrtpSrtp, false, "RTP/AVP"},
		{ZrtpSrtp, true, "RTP/AVPF"},
		{DtlsSrtp, false, "UDP/TLS/RTP/SAVP"},
		{DtlsSrtp, true, "UDP/TLS/RTP/SAVPF"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ProfileFor(tt.mode, tt.avpf), "%s avpf=%v", tt.mode, tt.avpf)
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name        string
		local       Intent
		remote      Intent
		wantMode    Mode
		wantProfile Profile
		wantErr     bool
	}{
		{
			name:        "без шифрования",
			wantMode:    None,
			wantProfile: ProfileAVP,
		},
		{
			name:        "AVPF с одной стороны",
			remote:      Intent{AVPF: true},
			wantMode:    None,
			wantProfile: ProfileAVPF,
		},
		{
			name:        "DTLS побеждает SDES",
			local:       Intent{Mode: SdesSrtp, Suites: []CryptoSuite{aes128}, Fingerprint: localFP},
			remote:      Intent{Mode: DtlsSrtp, Fingerprint: remoteFP},
			wantMode:    DtlsSrtp,
			wantProfile: ProfileDTLSSAVP,
		},
		{
			name:        "DTLS запрошен одной стороной",
			local:       Intent{Mode: DtlsSrtp, AVPF: true, Fingerprint: localFP},
			remote:      Intent{Fingerprint: remoteFP},
			wantMode:    DtlsSrtp,
			wantProfile: ProfileDTLSSAVPF,
		},
		{
			name:        "необязательный DTLS против RTP без отпечатка",
			local:       Intent{Mode: DtlsSrtp, Fingerprint: localFP},
			wantMode:    None,
			wantProfile: ProfileAVP,
		},
		{
			name:    "обязательный DTLS против RTP без отпечатка",
			local:   Intent{Mode: DtlsSrtp, Mandatory: true, Fingerprint: localFP},
			wantErr: true,
		},
		{
			name:    "удаленный DTLS без отпечатка",
			local:   Intent{Fingerprint: localFP},
			remote:  Intent{Mode: DtlsSrtp, Mandatory: true},
			wantErr: true,
		},
		{
			name:        "SDES с обеих сторон",
			local:       Intent{Mode: SdesSrtp, Suites: []CryptoSuite{aes128}},
			remote:      Intent{Mode: SdesSrtp, Mandatory: true, Suites: []CryptoSuite{aes128}},
			wantMode:    SdesSrtp,
			wantProfile: ProfileSAVP,
		},
		{
			name:        "ZRTP поверх обычного профиля",
			remote:      Intent{Mode: ZrtpSrtp},
			wantMode:    ZrtpSrtp,
			wantProfile: ProfileAVP,
		},
		{
			name:    "обязательный DTLS против SDES",
			local:   Intent{Mode: DtlsSrtp, Mandatory: true},
			remote:  Intent{Mode: SdesSrtp, Mandatory: true, Suites: []CryptoSuite{aes128}},
			wantErr: true,
		},
		{
			name:    "обязательное шифрование без ответного",
			local:   Intent{Mode: SdesSrtp, Mandatory: true, Suites: []CryptoSuite{aes128}},
			wantErr: true,
		},
		{
			name:    "удаленная сторона требует SRTP",
			remote:  Intent{Mode: SdesSrtp, Mandatory: true, Suites: []CryptoSuite{aes128}},
			wantErr: true,
		},
		{
			name:        "необязательный SDES против обычного RTP",
			local:       Intent{Mode: SdesSrtp, Suites: []CryptoSuite{aes128}},
			wantMode:    None,
			wantProfile: ProfileAVP,
		},
		{
			name:    "нет общих наборов SDES",
			local:   Intent{Mode: SdesSrtp, Suites: []CryptoSuite{aes256}},
			remote:  Intent{Mode: SdesSrtp, Suites: []CryptoSuite{aes32}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Resolve(tt.local, tt.remote)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrIncompatible))
				var ie *IncompatibleError
				require.ErrorAs(t, err, &ie)
				assert.NotEmpty(t, ie.Reason)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, res.Mode)
			assert.Equal(t, tt.wantProfile, res.Profile)
		})
	}
}

func TestMandatoryNeverDowngrades(t *testing.T) {
	modes := []Mode{None, SdesSrtp, ZrtpSrtp, DtlsSrtp}
	for _, lm := range modes {
		for _, rm := range modes {
			for _, rMandatory := range []bool{false, true} {
				local := Intent{Mode: lm, Mandatory: true, Suites: []CryptoSuite{aes128}}
				remote := Intent{Mode: rm, Mandatory: rMandatory, Suites: []CryptoSuite{aes128}}
				res, err := Resolve(local, remote)
				if err != nil {
					continue
				}
				assert.NotEqual(t, None, res.Mode, "local=%s remote=%s", lm, rm)
			}
		}
	}
}

func TestIntersectSuitesKeepsLocalOrder(t *testing.T) {
	remote := []CryptoSuite{
		{Tag: 7, Suite: "AES_CM_128_HMAC_SHA1_32", KeyParams: "inline:remote32"},
		{Tag: 8, Suite: "aes_cm_128_hmac_sha1_80", KeyParams: "inline:remote80"},
	}

	res := IntersectSuites([]CryptoSuite{aes256, aes128, aes32}, remote)

	require.Len(t, res, 2)
	assert.Equal(t, aes128.Suite, res[0].Suite)
	assert.Equal(t, 8, res[0].Tag)
	assert.Equal(t, "inline:local128", res[0].KeyParams)
	assert.Equal(t, aes32.Suite, res[1].Suite)
}

func TestAnsweredSuite(t *testing.T) {
	answered := []CryptoSuite{{Tag: 9, Suite: aes32.Suite, KeyParams: "inline:remote"}}

	chosen, tag, ok := AnsweredSuite([]CryptoSuite{aes128, aes32}, answered)
	require.True(t, ok)
	assert.Equal(t, 2, tag)
	assert.Equal(t, "inline:remote", chosen.KeyParams)

	_, _, ok = AnsweredSuite([]CryptoSuite{aes256}, answered)
	assert.False(t, ok)
}

func TestSetupRoles(t *testing.T) {
	assert.Equal(t, RoleClient, AnswerRole(RoleUnset))
	assert.Equal(t, RoleServer, AnswerRole(RoleClient))
	assert.Equal(t, RoleClient, AnswerRole(RoleServer))
	assert.Equal(t, RoleServer, OffererRole(RoleClient))
	assert.Equal(t, RoleClient, OffererRole(RoleServer))
	assert.Equal(t, RoleUnset, ParseSetupRole("ACTPASS"))
	assert.Equal(t, "passive", RoleServer.String())
}

func TestProfileCompatible(t *testing.T) {
	assert.True(t, Compatible(ProfileAVP, ProfileAVPF))
	assert.True(t, Compatible(ProfileSAVPF, "rtp/savp"))
	assert.False(t, Compatible(ProfileAVP, ProfileSAVP))
	assert.False(t, Compatible(ProfileDTLSSAVP, ProfileSAVP))
	assert.True(t, Compatible("TCP/MSRP", "tcp/msrp"))
	assert.False(t, Compatible("TCP/MSRP", ProfileAVP))
}
