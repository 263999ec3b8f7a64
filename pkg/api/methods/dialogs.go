// Zaparoo Factory Test
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo Factory Test.
//
// Zaparoo Factory Test is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo Factory Test is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo Factory Test.  If not, see <http://www.gnu.org/licenses/>.

package methods

import (
	"fmt"

	"github.com/ZaparooProject/factory-test/pkg/api/models"
	"github.com/ZaparooProject/factory-test/pkg/api/models/requests"
	"github.com/ZaparooProject/factory-test/pkg/api/validation"
	"github.com/rs/zerolog/log"
)

func HandleDialogsPending(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	return models.DialogsResponse{Dialogs: env.Dialogs.Pending()}, nil
}

// HandleDialogsRespond answers an open operator dialog on behalf of a
// remote client.
func HandleDialogsRespond(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	var params models.DialogRespondParams
	if err := validation.ValidateAndUnmarshal(env.Params, &params); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	log.Info().Str("dialog", params.DialogID).Str("choice", params.Choice).Msg("dialog answered over API")
	if err := env.Dialogs.Respond(params.DialogID, params.Choice); err != nil {
		return nil, fmt.Errorf("failed to answer dialog: %w", err)
	}
	return nil, nil
}
