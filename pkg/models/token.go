/*
 * Copyright 2025 Fieldline Systems.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

// TokenMetadata describes the media associated with a token. The
// renderer consumes the paths; this daemon only caches and forwards
// them. Video tokens carry a non-empty Video filename and are shown
// with a processing screen instead of the image.
type TokenMetadata struct {
	Image           string `json:"image,omitempty"`
	Audio           string `json:"audio,omitempty"`
	Video           string `json:"video,omitempty"`
	ProcessingImage string `json:"processingImage,omitempty"`
}

// IsVideoToken reports whether the token triggers video playback on
// the orchestrator side.
func (t TokenMetadata) IsVideoToken() bool {
	return t.Video != "" && t.Video != "null"
}
