package script

import (
	"fmt"
	"strings"

	"github.com/alx-home/webview/internal/codec"
)

// Bootstrap generates the script that installs window.__webview__ on page
// load. postFn is a JS expression evaluating to the host's message-post
// function; the session nonce is baked in and checked on every callback so a
// foreign page context cannot drive this instance's bridge.
func Bootstrap(postFn, nonce string) string {
	return fmt.Sprintf(bootstrapTemplate, codec.Quote(nonce), postFn)
}

const bootstrapTemplate = `
(function() {
   'use strict';

   var NONCE = %s;

   function generateId() {
      var crypto = window.crypto || window.msCrypto;
      var bytes = new Uint8Array(16);
      crypto.getRandomValues(bytes);

      return Array.prototype.slice.call(bytes).map(function(n) {
         var s = n.toString(16);
         return ((s.length %% 2) == 1 ? '0' : '') + s;
      }).join('');
   }

   var Webview = (function() {
      var _promises = {};
      function Webview_() {}

      Webview_.prototype.post = function(message) {
         return (%s)(message);
      };

      Webview_.prototype.call = function(method) {
         var _id = generateId();
         var _params = Array.prototype.slice.call(arguments, 1);
         var promise = new Promise(function(resolve, reject) {
            _promises[_id] = { resolve: resolve, reject: reject };
         });

         this.post(JSON.stringify({
            nonce: NONCE,
            reverse: false,
            id: _id,
            method: method,
            params: JSON.stringify(_params)
         }));

         return promise;
      };

      Webview_.prototype.onReply = function(id, status, result, nonce) {
         if (nonce !== NONCE) {
            return;
         }
         var promise = _promises[id];
         if (!promise) {
            return;
         }
         delete _promises[id];

         if (result !== undefined) {
            try {
               result = JSON.parse(result);
            } catch (e) {
               promise.reject(new Error('Failed to parse binding result as JSON'));
               return;
            }
         }

         if (status === 0) {
            promise.resolve(result);
         } else {
            promise.reject(result);
         }
      };

      Webview_.prototype.onBind = function(name, nonce) {
         if (nonce !== undefined && nonce !== NONCE) {
            return;
         }
         if (window.hasOwnProperty(name)) {
            throw new Error('Property "' + name + '" already exists');
         }

         window[name] = (function() {
            var params = [name].concat(Array.prototype.slice.call(arguments));
            return Webview_.prototype.call.apply(this, params);
         }).bind(this);
      };

      Webview_.prototype.onUnbind = function(name, nonce) {
         if (nonce !== undefined && nonce !== NONCE) {
            return;
         }
         if (!window.hasOwnProperty(name)) {
            throw new Error('Property "' + name + '" does not exist');
         }
         delete window[name];
      };

      Webview_.prototype.reverseCall = function(method, id, nonce, params) {
         if (nonce !== NONCE) {
            return;
         }
         var self = this;

         function report(error, result) {
            self.post(JSON.stringify({
               nonce: NONCE,
               reverse: true,
               id: id,
               method: method,
               error: error,
               result: result === undefined ? undefined : JSON.stringify(result)
            }));
         }

         var args;
         try {
            args = JSON.parse(params);
         } catch (e) {
            report(true, 'malformed arguments');
            return;
         }

         new Promise(function(resolve) {
            var target = window[method];
            if (typeof target !== 'function') {
               throw new Error('function "' + method + '" is not defined');
            }
            resolve(target.apply(window, args));
         }).then(function(result) {
            report(false, result);
         }, function(err) {
            report(true, err instanceof Error ? err.message : String(err));
         });
      };

      return Webview_;
   })();

   window.__webview__ = new Webview();
})()`

// BindScript generates the registration script listing the currently bound
// names. Its content always equals the exact set of live bindings.
func BindScript(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = codec.Quote(name)
	}
	return fmt.Sprintf(bindTemplate, "["+strings.Join(quoted, ",")+"]")
}

const bindTemplate = `(function() {
   'use strict';
   var methods = %s;

   methods.forEach(function(name) {
      window.__webview__.onBind(name);
   });
})()`
