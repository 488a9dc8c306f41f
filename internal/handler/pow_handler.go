package handler

import (
	"errors"
	"net/http"

	"roomchat/internal/pkg/errs"
	"roomchat/internal/pkg/pow"
	"roomchat/internal/pkg/req"
	"roomchat/internal/pkg/resp"
)

// HandlePowChallenge issues a fresh nonce together with the required difficulty.
func HandlePowChallenge(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]any{
			"nonce":      deps.PoW.GenerateNonce(),
			"difficulty": deps.PoW.Difficulty(),
		})
	}
}

type PowVerifyInput struct {
	Nonce   string `json:"nonce"`
	Counter string `json:"counter"`
}

// HandlePowVerify trades a solved challenge for a single-use proof token.
func HandlePowVerify(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input PowVerifyInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.Nonce == "" || input.Counter == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		token, err := deps.PoW.ValidateProof(input.Nonce, input.Counter)
		if err != nil {
			if errors.Is(err, pow.ErrNonceInvalid) || errors.Is(err, pow.ErrProofInsufficient) {
				resp.RespondError(w, r, errs.NewError(errs.ErrPowChallengeInvalid))
				return
			}
			resp.RespondError(w, r, errs.NewError(errs.ErrPowChallengeInternal))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"powToken":  token,
			"expiresIn": int(pow.ProofTokenDuration.Seconds()),
		})
	}
}
